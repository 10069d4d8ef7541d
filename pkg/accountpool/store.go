package accountpool

import (
	"context"
	"database/sql"
	"fmt"
)

// store wraps the raw SQL behind the accounts/proxies tables. It
// holds no locks of its own; callers serialize writes with Pool.mu.
type store struct {
	db *sql.DB
}

func newStore(db *sql.DB) *store {
	return &store{db: db}
}

func (s *store) insertAccountIfAbsent(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts(account_id, client_id, client_secret, username, password,
			status, cooldown_until, fail_count, last_error, proxy_id)
		VALUES (?, ?, ?, ?, ?, 'ready', 0, 0, NULL, ?)
		ON CONFLICT(account_id) DO NOTHING`,
		a.AccountID, a.ClientID, a.ClientSecret, a.Username, a.Password, nullable(a.ProxyID))
	if err != nil {
		return fmt.Errorf("inserting account %s: %w", a.AccountID, err)
	}
	return nil
}

func (s *store) insertProxyIfAbsent(ctx context.Context, p Proxy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proxies(proxy_id, http, https, tag, provider)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(proxy_id) DO NOTHING`,
		p.ProxyID, nullable(p.HTTP), nullable(p.HTTPS), nullable(p.Tag), nullable(p.Provider))
	if err != nil {
		return fmt.Errorf("inserting proxy %s: %w", p.ProxyID, err)
	}
	return nil
}

// selectAndLeaseCandidate atomically flips one eligible account to
// leased and returns its full row, or (nil, nil) if none is
// eligible or the row raced away before the guarded UPDATE landed.
func (s *store) selectAndLeaseCandidate(ctx context.Context, now float64) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning lease tx: %w", err)
	}
	defer tx.Rollback()

	var a Account
	var lastError, proxyID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT account_id, client_id, client_secret, username, password,
			status, cooldown_until, fail_count, last_error, proxy_id
		FROM accounts
		WHERE status = 'ready' AND cooldown_until <= ?
		ORDER BY fail_count ASC
		LIMIT 1`, now).Scan(
		&a.AccountID, &a.ClientID, &a.ClientSecret, &a.Username, &a.Password,
		&a.Status, &a.CooldownUntil, &a.FailCount, &lastError, &proxyID)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("selecting ready account: %w", err)
	}
	a.LastError = lastError.String
	a.ProxyID = proxyID.String

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET status = 'leased' WHERE account_id = ? AND status = 'ready'`,
		a.AccountID)
	if err != nil {
		return nil, fmt.Errorf("leasing account %s: %w", a.AccountID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking lease result for %s: %w", a.AccountID, err)
	}
	if affected == 0 {
		// Raced with a concurrent leaser (or a health-manager write)
		// between the SELECT and the UPDATE.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lease for %s: %w", a.AccountID, err)
	}
	a.Status = StatusLeased
	return &a, nil
}

func (s *store) releaseSuccess(ctx context.Context, accountID string, now, cooldownBase float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'ready',
			cooldown_until = ?,
			fail_count = MAX(0, fail_count - 1)
		WHERE account_id = ?`,
		now+cooldownBase/4, accountID)
	if err != nil {
		return fmt.Errorf("releasing account %s (success): %w", accountID, err)
	}
	return nil
}

func (s *store) releaseFailure(ctx context.Context, accountID string, now, cooldownBase float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'ready',
			cooldown_until = ?,
			fail_count = fail_count + 1
		WHERE account_id = ?`,
		now+cooldownBase, accountID)
	if err != nil {
		return fmt.Errorf("releasing account %s (failure): %w", accountID, err)
	}
	return nil
}

func (s *store) cooldown(ctx context.Context, accountID string, until float64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'ready', cooldown_until = ?, last_error = ?
		WHERE account_id = ?`,
		until, reason, accountID)
	if err != nil {
		return fmt.Errorf("cooling down account %s: %w", accountID, err)
	}
	return nil
}

func (s *store) quarantine(ctx context.Context, accountID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = 'quarantine', last_error = ? WHERE account_id = ?`,
		reason, accountID)
	if err != nil {
		return fmt.Errorf("quarantining account %s: %w", accountID, err)
	}
	return nil
}

func (s *store) healthReport(ctx context.Context, now float64) (HealthReport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, cooldown_until FROM accounts`)
	if err != nil {
		return HealthReport{}, fmt.Errorf("scanning accounts for health report: %w", err)
	}
	defer rows.Close()

	var report HealthReport
	for rows.Next() {
		var status string
		var cooldownUntil float64
		if err := rows.Scan(&status, &cooldownUntil); err != nil {
			return HealthReport{}, fmt.Errorf("scanning account row: %w", err)
		}
		switch Status(status) {
		case StatusLeased:
			report.Leased++
		case StatusQuarantine:
			report.Quarantine++
		case StatusReady:
			report.Ready++
			if cooldownUntil > now {
				report.Cooling++
			}
		}
	}
	return report, rows.Err()
}

// readyCandidates lists accounts currently eligible for a health
// probe: status=ready and not cooling.
func (s *store) readyCandidates(ctx context.Context, now float64) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, client_id, client_secret, username, password,
			status, cooldown_until, fail_count, last_error, proxy_id
		FROM accounts
		WHERE status = 'ready' AND cooldown_until <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("listing ready accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var lastError, proxyID sql.NullString
		if err := rows.Scan(&a.AccountID, &a.ClientID, &a.ClientSecret, &a.Username, &a.Password,
			&a.Status, &a.CooldownUntil, &a.FailCount, &lastError, &proxyID); err != nil {
			return nil, fmt.Errorf("scanning ready account row: %w", err)
		}
		a.LastError = lastError.String
		a.ProxyID = proxyID.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// healthOK mirrors releaseSuccess but only touches rows still ready:
// a health probe must never clobber a lease a worker has just
// started.
func (s *store) healthOK(ctx context.Context, accountID string, now, cooldownBase float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET cooldown_until = MIN(cooldown_until, ?),
			fail_count = MAX(0, fail_count - 1)
		WHERE account_id = ? AND status = 'ready'`,
		now+cooldownBase/4, accountID)
	if err != nil {
		return fmt.Errorf("recording healthy probe for %s: %w", accountID, err)
	}
	return nil
}

func (s *store) healthCooldown(ctx context.Context, accountID string, until float64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET cooldown_until = ?, last_error = ?
		WHERE account_id = ? AND status = 'ready'`,
		until, reason, accountID)
	if err != nil {
		return fmt.Errorf("cooling down account %s from health probe: %w", accountID, err)
	}
	return nil
}

func (s *store) healthIncrementFail(ctx context.Context, accountID string, reason string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning fail-increment tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET fail_count = fail_count + 1, last_error = ?
		WHERE account_id = ? AND status = 'ready'`, reason, accountID); err != nil {
		return 0, fmt.Errorf("incrementing fail_count for %s: %w", accountID, err)
	}

	var failCount int
	if err := tx.QueryRowContext(ctx, `SELECT fail_count FROM accounts WHERE account_id = ?`, accountID).
		Scan(&failCount); err != nil {
		return 0, fmt.Errorf("reading fail_count for %s: %w", accountID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing fail-increment for %s: %w", accountID, err)
	}
	return failCount, nil
}

func (s *store) healthQuarantine(ctx context.Context, accountID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = 'quarantine', last_error = ?
		WHERE account_id = ? AND status = 'ready'`, reason, accountID)
	if err != nil {
		return fmt.Errorf("quarantining account %s from health probe: %w", accountID, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
