// Package accountpool implements the durable pool of Reddit API
// accounts and their transient leases, grounded in
// scraping/reddit/session_pool.py.
package accountpool

import "github.com/aniruddhsingh7901/redditharvester/pkg/errkind"

// Status is one of the three account lifecycle states.
type Status string

const (
	StatusReady      Status = "ready"
	StatusLeased     Status = "leased"
	StatusQuarantine Status = "quarantine"
)

// Account is a row in the accounts table.
type Account struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	Status        Status
	CooldownUntil float64
	FailCount     int
	LastError     string
	ProxyID       string
}

// Proxy is an optional egress binding, round-robined in memory.
type Proxy struct {
	ProxyID  string
	HTTP     string
	HTTPS    string
	Tag      string
	Provider string
}

// HealthReport groups accounts by status.
type HealthReport struct {
	Ready      int
	Leased     int
	Quarantine int
	Cooling    int
}

// ReasonFromKind maps an errkind.Kind to the short last_error label
// used by both the health manager and the orchestrator when they
// cooldown/quarantine a lease for a classified error.
func ReasonFromKind(k errkind.Kind) string {
	return errkind.ReasonLabel(k)
}
