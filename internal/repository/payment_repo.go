package repository

import (
	"context"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type CreatePaymentInput struct {
	CallID   int64
	UserID   int64
	MentorID int64
	Amount   float64
	Status   string
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments (call_id, user_id, mentor_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, call_id, user_id, mentor_id, amount, status, stripe_session_id, created_at
	`
	var payment models.Payment
	err := r.db.QueryRow(
		ctx,
		query,
		input.CallID,
		input.UserID,
		input.MentorID,
		input.Amount,
		input.Status,
	).Scan(
		&payment.ID,
		&payment.CallID,
		&payment.UserID,
		&payment.MentorID,
		&payment.Amount,
		&payment.Status,
		&payment.StripeSessionID,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByCallID(ctx context.Context, callID int64) (*models.Payment, error) {
	query := `
		SELECT id, call_id, user_id, mentor_id, amount, status, stripe_session_id, created_at
		FROM payments
		WHERE call_id = $1
	`
	var payment models.Payment
	err := r.db.QueryRow(ctx, query, callID).Scan(
		&payment.ID,
		&payment.CallID,
		&payment.UserID,
		&payment.MentorID,
		&payment.Amount,
		&payment.Status,
		&payment.StripeSessionID,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByStripeSessionID(
	ctx context.Context,
	stripeSessionID string,
) (*models.Payment, error) {
	query := `
		SELECT id, call_id, user_id, mentor_id, amount, status, stripe_session_id, created_at
		FROM payments
		WHERE stripe_session_id = $1
	`
	var payment models.Payment
	err := r.db.QueryRow(ctx, query, stripeSessionID).Scan(
		&payment.ID,
		&payment.CallID,
		&payment.UserID,
		&payment.MentorID,
		&payment.Amount,
		&payment.Status,
		&payment.StripeSessionID,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) SetStripeSessionID(
	ctx context.Context,
	paymentID int64,
	stripeSessionID string,
) error {
	query := `UPDATE payments SET stripe_session_id = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, paymentID, stripeSessionID)
	return err
}

func (r *PaymentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	paymentID int64,
	currentStatus string,
	nextStatus string,
) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING id, call_id, user_id, mentor_id, amount, status, stripe_session_id, created_at
	`
	var payment models.Payment
	err := r.db.QueryRow(ctx, query, paymentID, currentStatus, nextStatus).Scan(
		&payment.ID,
		&payment.CallID,
		&payment.UserID,
		&payment.MentorID,
		&payment.Amount,
		&payment.Status,
		&payment.StripeSessionID,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByCallIDs(
	ctx context.Context,
	callIDs []int64,
) (map[int64]models.Payment, error) {
	if len(callIDs) == 0 {
		return map[int64]models.Payment{}, nil
	}

	query := `
		SELECT id, call_id, user_id, mentor_id, amount, status, stripe_session_id, created_at
		FROM payments
		WHERE call_id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, callIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make(map[int64]models.Payment, len(callIDs))
	for rows.Next() {
		var payment models.Payment
		if err := rows.Scan(
			&payment.ID,
			&payment.CallID,
			&payment.UserID,
			&payment.MentorID,
			&payment.Amount,
			&payment.Status,
			&payment.StripeSessionID,
			&payment.CreatedAt,
		); err != nil {
			return nil, err
		}
		payments[payment.CallID] = payment
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}
