package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, donor_id, endpoint, p256dh_key, auth_key, device_name, created_at`

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := scanner.Scan(&sub.ID, &sub.DonorID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription registers a browser endpoint for a donor. Re-registering
// an endpoint refreshes its keys and moves it to the new donor.
func (s *PushStore) CreateSubscription(ctx context.Context, donorID int64, endpoint, p256dh, auth, deviceName string, now time.Time) (*model.PushSubscription, error) {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO push_subscriptions (donor_id, endpoint, p256dh_key, auth_key, device_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET donor_id = excluded.donor_id, p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key, device_name = excluded.device_name`,
		donorID, endpoint, p256dh, auth, deviceName, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}

	// LastInsertId is unreliable after an upsert; look the row up by endpoint.
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListByDonor(ctx context.Context, donorID int64) ([]model.PushSubscription, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+pushCols+` FROM push_subscriptions WHERE donor_id = ? ORDER BY created_at DESC, id DESC`, donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription owned by donorID.
func (s *PushStore) DeleteSubscription(ctx context.Context, id, donorID int64) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = ? AND donor_id = ?`, id, donorID)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// DeleteByEndpoint drops a subscription the push service reported as gone.
func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}
