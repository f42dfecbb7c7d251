package hecate

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giall/hecate/notify"
)

// Flow labels used on hecate_flows_total.
const (
	flowRegister       = "register"
	flowLogin          = "login"
	flowRefresh        = "refresh"
	flowLogout         = "logout"
	flowInvalidateAll  = "invalidate_all"
	flowMagicRequest   = "magic_login_request"
	flowMagicConsume   = "magic_login"
	flowResetRequest   = "password_reset_request"
	flowReset          = "password_reset"
	flowVerifyRequest  = "email_verification_request"
	flowVerify         = "email_verification"
	flowChangeEmail    = "change_email"
	flowChangePassword = "change_password"
	flowDeleteAccount  = "delete_account"
	flowAuthenticate   = "authenticate"
)

// Metrics holds the Prometheus collectors the engine updates.
type Metrics struct {
	Flows         *prometheus.CounterVec
	Evictions     prometheus.Counter
	Notifications *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Flows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hecate_flows_total",
				Help: "Total number of auth flow invocations by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		Evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hecate_session_evictions_total",
				Help: "Total number of sessions evicted to stay within the per-account bound",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hecate_notifications_total",
				Help: "Total number of notification delivery attempts by kind and status",
			},
			[]string{"kind", "status"},
		),
	}

	reg.MustRegister(m.Flows)
	reg.MustRegister(m.Evictions)
	reg.MustRegister(m.Notifications)

	return m
}

func (m *Metrics) observe(flow string, err error) {
	if m == nil {
		return
	}
	m.Flows.WithLabelValues(flow, outcomeLabel(err)).Inc()
}

func (m *Metrics) evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.Add(float64(n))
}

func (m *Metrics) notified(kind notify.Kind, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.Notifications.WithLabelValues(string(kind), status).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTokenTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrSessionNotMember):
		return "not_member"
	case errors.Is(err, ErrAlreadyConsumed):
		return "already_consumed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPasswordPolicy), errors.Is(err, ErrPasswordReuse), errors.Is(err, ErrInvalidInput):
		return "rejected"
	default:
		return "error"
	}
}
