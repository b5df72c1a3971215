package bookingrepo

import (
	"context"
	"database/sql"
	"errors"

	"staypay/model"
)

// Repo is the read-only view of bookings this subsystem is allowed. Booking
// state transitions belong to the booking collaborator.
type Repo interface {
	ByID(ctx context.Context, id int64) (*model.Booking, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) ByID(ctx context.Context, id int64) (*model.Booking, error) {
	const q = `
SELECT id, listing_id, guest_id, host_id, total_amount, currency, status, created_at
FROM bookings
WHERE id = $1`
	var b model.Booking
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.ListingID, &b.GuestID, &b.HostID,
		&b.TotalAmount, &b.Currency, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
