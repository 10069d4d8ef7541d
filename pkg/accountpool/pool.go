package accountpool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/aniruddhsingh7901/redditharvester/pkg/errkind"
)

const acquireRetryBackoff = time.Second

// Pool is the durable account/proxy registry and lease state machine.
// One Pool owns one accounts database handle; writes are serialized
// by mu so the lease-selection transaction and the
// release/cooldown/quarantine transitions never interleave within the
// process.
type Pool struct {
	store        *store
	proxies      *ProxyRotator
	mu           sync.Mutex
	cooldownBase float64
	nowFn        func() time.Time
}

// New wraps an already-migrated accounts database handle. cooldownBase
// is the ACCOUNT_COOLDOWN_BASE setting (default
// 60s), used by Release's success/failure branches.
func New(db *sql.DB, cooldownBase float64) *Pool {
	return &Pool{
		store:        newStore(db),
		proxies:      NewProxyRotator(),
		cooldownBase: cooldownBase,
		nowFn:        time.Now,
	}
}

// LoadProxiesFile (re)loads the in-memory round-robin proxy list from
// a proxies.json file.
func (p *Pool) LoadProxiesFile(path string) error {
	return p.proxies.LoadFile(path)
}

func (p *Pool) epochNow() float64 {
	return float64(p.nowFn().UnixNano()) / 1e9
}

// AddAccount idempotently seeds an account: a second call with the
// same account_id leaves status/cooldown_until/fail_count/last_error/
// proxy_id untouched round-trip property.
func (p *Pool) AddAccount(ctx context.Context, a Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.insertAccountIfAbsent(ctx, a)
}

// AddProxy idempotently registers a proxy in the durable registry.
// It does not affect the in-memory rotation list used by Acquire;
// that list is reloaded from proxies.json via LoadProxiesFile.
func (p *Pool) AddProxy(ctx context.Context, proxy Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.insertProxyIfAbsent(ctx, proxy)
}

// Acquire selects the eligible account with the lowest fail_count and
// atomically flips it to leased, assigning the next proxy in
// rotation. On a miss it retries once after a ~1s backoff before
// failing with errkind.ErrNoReadyAccount.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	lease, err := p.tryAcquire(ctx)
	if err != nil || lease != nil {
		return lease, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(acquireRetryBackoff):
	}

	lease, err = p.tryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, errkind.ErrNoReadyAccount
	}
	return lease, nil
}

func (p *Pool) tryAcquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := p.store.selectAndLeaseCandidate(ctx, p.epochNow())
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	return &Lease{
		AccountID: a.AccountID,
		ClientID:  a.ClientID,
		Secret:    a.ClientSecret,
		Username:  a.Username,
		Password:  a.Password,
		Proxy:     p.proxies.Next(),
		pool:      p,
	}, nil
}

// HealthReport groups accounts by status, the first step of a health
// sweep.
func (p *Pool) HealthReport(ctx context.Context) (HealthReport, error) {
	return p.store.healthReport(ctx, p.epochNow())
}

// ReadyCandidates lists accounts eligible for a health probe.
func (p *Pool) ReadyCandidates(ctx context.Context) ([]Account, error) {
	return p.store.readyCandidates(ctx, p.epochNow())
}

// ProbeOK records a successful health probe against an account that
// was not leased out from under the health manager in the meantime;
// the update is scoped to status='ready' so a concurrent Acquire
// always wins.
func (p *Pool) ProbeOK(ctx context.Context, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.healthOK(ctx, accountID, p.epochNow(), p.cooldownBase)
}

// ProbeCooldown applies a fixed cooldown window to an account for a
// classified rate-limit or other transient probe failure.
func (p *Pool) ProbeCooldown(ctx context.Context, accountID string, seconds float64, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.healthCooldown(ctx, accountID, p.epochNow()+seconds, reason)
}

// ProbeQuarantine immediately quarantines an account after a probe
// classifies its error as an auth denial.
func (p *Pool) ProbeQuarantine(ctx context.Context, accountID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.healthQuarantine(ctx, accountID, reason)
}

// ProbeNetworkFailure increments fail_count and returns the account's
// new count so the caller can decide between cooldown and
// quarantine for a classified network failure.
func (p *Pool) ProbeNetworkFailure(ctx context.Context, accountID, reason string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.healthIncrementFail(ctx, accountID, reason)
}
