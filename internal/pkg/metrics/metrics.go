// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 发售核心的业务指标。label 的取值集合是封闭的，
// 与 port 层定义的业务结果一一对应。
var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftmall",
		Subsystem: "sale",
		Name:      "claims_total",
		Help:      "Claim attempts by outcome.",
	}, []string{"outcome"})

	ReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftmall",
		Subsystem: "sale",
		Name:      "releases_total",
		Help:      "Compensation attempts by outcome.",
	}, []string{"outcome"})

	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nftmall",
		Subsystem: "sale",
		Name:      "lottery_registrations_total",
		Help:      "Accepted lottery registrations.",
	})

	DrawsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftmall",
		Subsystem: "sale",
		Name:      "draws_total",
		Help:      "Lottery draws by outcome.",
	}, []string{"outcome"})

	ChainPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nftmall",
		Subsystem: "chain",
		Name:      "polls_total",
		Help:      "Status polls issued against the chain gateway.",
	})

	ChainOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftmall",
		Subsystem: "chain",
		Name:      "operations_total",
		Help:      "Chain operations reaching a terminal state.",
	}, []string{"state"})
)
