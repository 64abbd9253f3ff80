package service

// Authorizer answers whether an identity holds admin rights. It is injected
// so tests can grant or withhold elevation without touching globals.
type Authorizer interface {
	IsAdmin(identity string) bool
}

type allowList map[string]struct{}

// NewAllowList builds an Authorizer from a fixed list of admin identities.
func NewAllowList(identities []string) Authorizer {
	l := make(allowList, len(identities))
	for _, id := range identities {
		if id != "" {
			l[id] = struct{}{}
		}
	}
	return l
}

func (l allowList) IsAdmin(identity string) bool {
	_, ok := l[identity]
	return ok
}
