package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedeemDuration tracks the latency of redemption requests
	RedeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "referral_redeem_duration_seconds",
			Help: "Duration of referral redemption requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"result"}, // success, invalid_email, not_eligible, already_claimed, exhausted, error
	)

	// AdminLogins counts login attempts by outcome
	AdminLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_admin_logins_total",
			Help: "Admin login attempts by outcome",
		},
		[]string{"result"}, // success or rejected
	)
)

// RecordRedeemDuration records the duration of a redemption request
func RecordRedeemDuration(result string, duration float64) {
	RedeemDuration.WithLabelValues(result).Observe(duration)
}

// RecordAdminLogin records a login attempt outcome
func RecordAdminLogin(result string) {
	AdminLogins.WithLabelValues(result).Inc()
}
