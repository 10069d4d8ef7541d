package accountpool

import (
	"context"
	"io"
	"sync"
	"time"
)

// finishTimeout bounds the terminal-transition write below, run on a
// context detached from the caller's so a cancelled worker ctx (e.g.
// the supervisor scaling a worker down mid-Scrape) cannot abort the
// account's release/cooldown/quarantine update and strand it leased.
const finishTimeout = 10 * time.Second

// Lease is a transient ticket granting exclusive use of one account.
// It is released by exactly one of Release, Cooldown, or Quarantine;
// further calls are no-ops, so a caller that double-releases a lease
// (e.g. in a deferred cleanup after an explicit release) is safe.
type Lease struct {
	AccountID string
	ClientID  string
	Secret    string
	Username  string
	Password  string
	Proxy     *Proxy

	pool *Pool

	mu       sync.Mutex
	released bool
	closer   io.Closer
}

// SetCloser registers the remote client handle the external
// collaborator constructed for this lease, so it is closed exactly
// once alongside the lease's terminal transition.
func (l *Lease) SetCloser(c io.Closer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closer = c
}

func (l *Lease) finish(ctx context.Context, apply func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	closer := l.closer
	l.mu.Unlock()

	if closer != nil {
		_ = closer.Close()
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	return apply(finishCtx)
}

// Release returns the lease's account to ready. A successful run
// applies a short cooldown and decrements fail_count; a failed run
// applies the full cooldown window and increments it.
func (l *Lease) Release(ctx context.Context, success bool) error {
	return l.finish(ctx, func(ctx context.Context) error {
		if l.Proxy != nil && l.pool.proxies != nil {
			if success {
				l.pool.proxies.RecordSuccess(l.Proxy.ProxyID)
			} else {
				l.pool.proxies.RecordFailure(l.Proxy.ProxyID)
			}
		}
		now := l.pool.epochNow()
		if success {
			return l.pool.store.releaseSuccess(ctx, l.AccountID, now, l.pool.cooldownBase)
		}
		return l.pool.store.releaseFailure(ctx, l.AccountID, now, l.pool.cooldownBase)
	})
}

// Cooldown returns the account to ready but ineligible until
// now+seconds, recording reason as last_error.
func (l *Lease) Cooldown(ctx context.Context, seconds float64, reason string) error {
	return l.finish(ctx, func(ctx context.Context) error {
		now := l.pool.epochNow()
		return l.pool.store.cooldown(ctx, l.AccountID, now+seconds, reason)
	})
}

// Quarantine marks the account terminal-until-operator-action.
func (l *Lease) Quarantine(ctx context.Context, reason string) error {
	return l.finish(ctx, func(ctx context.Context) error {
		return l.pool.store.quarantine(ctx, l.AccountID, reason)
	})
}
