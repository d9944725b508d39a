package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireLease claims the named lease for holder until now+ttl.
//
// now is the caller's clock reading; expiry is judged against it, not the
// host clock. The claim succeeds when no lease exists, when the existing lease has
// expired, or when holder already owns it (in which case it is renewed).
// Returns false without error when another holder owns a live lease.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	nowMs := now.UnixMilli()
	expiresAt := nowMs + ttl.Milliseconds()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_leases (name, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
		SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE sync_leases.holder = excluded.holder OR sync_leases.expires_at <= ?
	`, name, holder, expiresAt, nowMs)
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: %w", name, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: rows affected: %w", name, err)
	}

	return rowsAffected > 0, nil
}

// ReleaseLease drops the named lease if holder owns it.
// Releasing a lease held by someone else, or no lease at all, is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_leases
		WHERE name = ? AND holder = ?
	`, name, holder)
	if err != nil {
		return fmt.Errorf("release lease %q: %w", name, err)
	}
	return nil
}
