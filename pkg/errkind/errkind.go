// Package errkind defines the named error kinds and the textual
// classification heuristic shared by the health manager (C3) and the
// orchestrator (C5).
package errkind

import (
	"errors"
	"regexp"
	"strings"
)

// Kind is one of the named error kinds. It is not a Go error type
// itself; use the sentinel errors below with errors.Is, or call
// Classify on a collaborator's error message.
type Kind string

const (
	NoReadyAccount   Kind = "no_ready_account"
	RateLimited      Kind = "rate_limited"
	AuthDenied       Kind = "auth_denied"
	TransientNet     Kind = "transient_network"
	StoreUnavailable Kind = "store_unavailable"
	Cancelled        Kind = "cancelled"
	FatalConfig      Kind = "fatal_config"
)

// Sentinel errors, one per kind, for use with errors.Is/errors.As.
var (
	ErrNoReadyAccount   = errors.New("no ready reddit account available for leasing")
	ErrRateLimited      = errors.New("rate limited")
	ErrAuthDenied       = errors.New("auth denied")
	ErrTransientNetwork = errors.New("transient network error")
	ErrStoreUnavailable = errors.New("durable store unavailable")
	ErrCancelled        = errors.New("cancelled")
	ErrFatalConfig      = errors.New("fatal configuration error")
)

var (
	rateLimitPattern = regexp.MustCompile(`(?i)too many requests|ratelimit|429`)
	authPattern      = regexp.MustCompile(`(?i)unauthorized|forbidden|401|403|invalid_grant`)
)

// Classify applies the shared textual heuristic to a collaborator
// error message, returning RateLimited, AuthDenied, or TransientNet.
// It never returns the other four kinds; those are produced
// structurally by the caller, not inferred from text.
func Classify(msg string) Kind {
	switch {
	case rateLimitPattern.MatchString(msg):
		return RateLimited
	case authPattern.MatchString(msg):
		return AuthDenied
	default:
		return TransientNet
	}
}

// ClassifyErr is a convenience wrapper around Classify for error values.
func ClassifyErr(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err.Error())
}

// String renders a Kind as its wire/log label.
func (k Kind) String() string {
	return string(k)
}

// IsRateLimit reports whether msg matches the rate-limit heuristic.
func IsRateLimit(msg string) bool { return rateLimitPattern.MatchString(msg) }

// IsAuthDenied reports whether msg matches the auth-denial heuristic.
func IsAuthDenied(msg string) bool { return authPattern.MatchString(msg) }

// reasonLabel maps a Kind to the short reason string stored as
// last_error on an account row.
func reasonLabel(k Kind) string {
	switch k {
	case RateLimited:
		return "rate-limit"
	case AuthDenied:
		return "auth"
	default:
		return "network"
	}
}

// ReasonLabel exposes reasonLabel for callers that need the short
// last_error string matching a classified Kind.
func ReasonLabel(k Kind) string { return reasonLabel(k) }

// TrimmedMessage trims surrounding whitespace from an error message.
// It does not change case; the classification regexes are already
// case-insensitive.
func TrimmedMessage(msg string) string {
	return strings.TrimSpace(msg)
}
