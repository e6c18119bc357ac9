// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain metrics are package-level so the account, token and server list
// packages can record events without holding a Server.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusgrid_logins_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)
	tokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusgrid_token_verifications_total",
			Help: "Total number of token verifications by result",
		},
		[]string{"result"},
	)
	presenceAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexusgrid_presence_accounts",
			Help: "Number of accounts held in the presence cache",
		},
	)
	presenceEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexusgrid_presence_evictions_total",
			Help: "Total number of idle accounts evicted from the presence cache",
		},
	)
	serverListAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusgrid_serverlist_admissions_total",
			Help: "Total number of server list admission checks by result",
		},
		[]string{"result"},
	)
)

// Metrics exposes the domain collectors registered with a Server.
type Metrics struct {
	LoginsTotal               *prometheus.CounterVec
	TokenVerificationsTotal   *prometheus.CounterVec
	PresenceAccounts          prometheus.Gauge
	PresenceEvictionsTotal    prometheus.Counter
	ServerListAdmissionsTotal *prometheus.CounterVec
}

// NewMetrics registers the domain collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal:               loginsTotal,
		TokenVerificationsTotal:   tokenVerificationsTotal,
		PresenceAccounts:          presenceAccounts,
		PresenceEvictionsTotal:    presenceEvictionsTotal,
		ServerListAdmissionsTotal: serverListAdmissionsTotal,
	}

	reg.MustRegister(m.LoginsTotal)
	reg.MustRegister(m.TokenVerificationsTotal)
	reg.MustRegister(m.PresenceAccounts)
	reg.MustRegister(m.PresenceEvictionsTotal)
	reg.MustRegister(m.ServerListAdmissionsTotal)

	return m
}

// RecordLogin counts a login attempt. result is "success", "invalid" or "locked".
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// RecordTokenVerification counts a token verification by result
// ("ok" or the internal rejection reason).
func RecordTokenVerification(result string) {
	tokenVerificationsTotal.WithLabelValues(result).Inc()
}

// SetPresenceAccounts reports the current presence cache size.
func SetPresenceAccounts(n int) {
	presenceAccounts.Set(float64(n))
}

// RecordPresenceEvictions counts evicted presence entries.
func RecordPresenceEvictions(n int) {
	presenceEvictionsTotal.Add(float64(n))
}

// RecordServerListAdmission counts a server list admission check.
func RecordServerListAdmission(result string) {
	serverListAdmissionsTotal.WithLabelValues(result).Inc()
}
