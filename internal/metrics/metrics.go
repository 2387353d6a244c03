package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so services can be built without a registry.
type Metrics struct {
	codesIssued     *prometheus.CounterVec
	codeClaims      *prometheus.CounterVec
	moderation      *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	sweepAffected   *prometheus.CounterVec
	sweepFailures   *prometheus.CounterVec
	decryptFailures prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "codes_issued_total",
			Help:      "Claim codes issued, by kind.",
		}, []string{"kind"}),
		codeClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "code_claims_total",
			Help:      "Claim attempts, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "moderation_transitions_total",
			Help:      "Moderated artifacts entering a status, by artifact kind.",
		}, []string{"artifact", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit rule.",
		}, []string{"rule"}),
		sweepAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "retention_rows_affected_total",
			Help:      "Rows deleted or archived by the retention sweeper, by policy.",
		}, []string{"policy"}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "retention_policy_failures_total",
			Help:      "Retention policy runs that returned an error.",
		}, []string{"policy"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "envelope_decrypt_failures_total",
			Help:      "Encrypted request bodies that failed to decrypt.",
		}),
	}
	reg.MustRegister(m.codesIssued, m.codeClaims, m.moderation, m.rateLimited,
		m.sweepAffected, m.sweepFailures, m.decryptFailures)
	return m
}

func (m *Metrics) CodeIssued(kind string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) CodeClaimed(kind, outcome string) {
	if m == nil {
		return
	}
	m.codeClaims.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Moderated(artifact, status string) {
	if m == nil {
		return
	}
	m.moderation.WithLabelValues(artifact, status).Inc()
}

func (m *Metrics) RateLimited(rule string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(rule).Inc()
}

// Swept records one policy run.
func (m *Metrics) Swept(policy string, affected int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweepFailures.WithLabelValues(policy).Inc()
		return
	}
	m.sweepAffected.WithLabelValues(policy).Add(float64(affected))
}

func (m *Metrics) DecryptFailed() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}
