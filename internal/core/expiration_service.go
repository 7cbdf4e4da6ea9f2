package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExpirationService sweeps soft reservations whose TTL has passed and
// releases their stock. Safe to run concurrently with order events and to
// re-run at any time: each reservation's expiry is its own transaction and
// rows already moved out of soft_reserved are skipped.
type ExpirationService interface {
	// ReleaseExpired transitions every overdue soft reservation to expired
	// and returns the count actually transitioned. One reservation failing
	// does not roll back the others; failures are joined into the returned
	// error alongside the successful count.
	ReleaseExpired(ctx context.Context) (int, error)
}

type expirationService struct {
	pool         *pgxpool.Pool
	reservations ReservationService
}

func NewExpirationService(pool *pgxpool.Pool, reservations ReservationService) ExpirationService {
	return &expirationService{pool: pool, reservations: reservations}
}

func (s *expirationService) ReleaseExpired(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM stock_reservations
		WHERE state = $1 AND expires_at < NOW()
		ORDER BY expires_at
	`, StateSoftReserved)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired reservations: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired reservation id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating expired reservations: %w", err)
	}

	count := 0
	var failures []error
	for _, id := range ids {
		expired, err := s.reservations.Expire(ctx, id)
		if err != nil {
			failures = append(failures, fmt.Errorf("reservation %s: %w", id, err))
			continue
		}
		if expired {
			count++
		}
		// expired == false: a concurrent confirm or cancel won the race.
	}
	return count, errors.Join(failures...)
}
