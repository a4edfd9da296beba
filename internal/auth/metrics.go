// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics contains the auth-flow Prometheus metrics. All record methods
// are nil-safe so the service can run without a registry (e.g. in tests).
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	RotationsTotal     *prometheus.CounterVec
	SessionsPurged     prometheus.Counter
}

// NewMetrics creates and registers the auth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_logins_total",
				Help: "Total number of login attempts by status",
			},
			[]string{"status"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_registrations_total",
				Help: "Total number of registration attempts by status",
			},
			[]string{"status"},
		),
		RotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_token_rotations_total",
				Help: "Total number of refresh token rotations by status",
			},
			[]string{"status"},
		),
		SessionsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authd_sessions_purged_total",
				Help: "Total number of sessions removed by the purge sweep",
			},
		),
	}

	reg.MustRegister(m.LoginsTotal, m.RegistrationsTotal, m.RotationsTotal, m.SessionsPurged)
	return m
}

func (m *Metrics) recordLogin(status string) {
	if m != nil {
		m.LoginsTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) recordRegistration(status string) {
	if m != nil {
		m.RegistrationsTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) recordRotation(status string) {
	if m != nil {
		m.RotationsTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) recordPurged(count int64) {
	if m != nil && count > 0 {
		m.SessionsPurged.Add(float64(count))
	}
}
