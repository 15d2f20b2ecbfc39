package postgres

import "context"

// Truncate empties every table between tests.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE leave_balances, leave_requests, holidays, users, audit_log`)
	return err
}
