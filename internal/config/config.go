package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBHost     string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or a unix socket path
	DBName     string `env:"DB_NAME,required"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	LedgerRPCURL     string        `env:"LEDGER_RPC_URL,required"`
	LedgerRPCTimeout time.Duration `env:"LEDGER_RPC_TIMEOUT" envDefault:"30s"`

	JWTSecret       string   `env:"JWT_SECRET,required"`
	AdminIdentities []string `env:"ADMIN_IDENTITIES" envSeparator:","`

	// Escrow protection policy. The fee is a fixed percentage collected at
	// funding time; it is configuration, never derived from the escrow.
	ProtectionFeeBps   uint   `env:"PROTECTION_FEE_BPS" envDefault:"150"`
	CollectionsAddress string `env:"COLLECTIONS_ADDRESS"`
	ShippingSLADays    int    `env:"SHIPPING_SLA_DAYS" envDefault:"7"`

	// Chat policy. Balances are in the smallest unit.
	GateMinBalance string `env:"GATE_MIN_BALANCE" envDefault:"1"`
	PostMinBalance uint64 `env:"POST_MIN_BALANCE" envDefault:"0"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
