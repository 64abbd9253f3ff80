// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peermart_purchases_total",
		Help: "Purchase attempts by outcome.",
	}, []string{"outcome"})

	EscrowTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peermart_escrow_transitions_total",
		Help: "Escrow state transitions by target state.",
	}, []string{"to"})

	VerificationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peermart_verification_rejections_total",
		Help: "Payment verification rejections by reason.",
	}, []string{"reason"})
)
