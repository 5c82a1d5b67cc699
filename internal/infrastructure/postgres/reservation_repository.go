package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

const reservationColumns = `id, confirmation_code, room_id, guest_id, check_in, check_out, adults, children,
	total_amount, refund_amount, status, payment_status, idempotency_key, cancellation_reason,
	created_at, updated_at, confirmed_at, checked_in_at, checked_out_at, cancelled_at, no_show_at, completed_at, version`

// 在庫を確保している状態
var holdingStatuses = []string{
	string(reservation.StatusPending),
	string(reservation.StatusConfirmed),
	string(reservation.StatusCheckedIn),
}

type reservationRow struct {
	ID                 string          `db:"id"`
	ConfirmationCode   string          `db:"confirmation_code"`
	RoomID             string          `db:"room_id"`
	GuestID            string          `db:"guest_id"`
	CheckIn            time.Time       `db:"check_in"`
	CheckOut           time.Time       `db:"check_out"`
	Adults             int             `db:"adults"`
	Children           int             `db:"children"`
	TotalAmount        decimal.Decimal `db:"total_amount"`
	RefundAmount       decimal.Decimal `db:"refund_amount"`
	Status             string          `db:"status"`
	PaymentStatus      string          `db:"payment_status"`
	IdempotencyKey     *string         `db:"idempotency_key"`
	CancellationReason string          `db:"cancellation_reason"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	ConfirmedAt        *time.Time      `db:"confirmed_at"`
	CheckedInAt        *time.Time      `db:"checked_in_at"`
	CheckedOutAt       *time.Time      `db:"checked_out_at"`
	CancelledAt        *time.Time      `db:"cancelled_at"`
	NoShowAt           *time.Time      `db:"no_show_at"`
	CompletedAt        *time.Time      `db:"completed_at"`
	Version            int             `db:"version"`
}

func toRow(r reservation.Reservation) reservationRow {
	row := reservationRow{
		ID:                 r.ID,
		ConfirmationCode:   r.ConfirmationCode,
		RoomID:             r.RoomID,
		GuestID:            r.GuestID,
		CheckIn:            r.Stay.CheckIn,
		CheckOut:           r.Stay.CheckOut,
		Adults:             r.Adults,
		Children:           r.Children,
		TotalAmount:        r.TotalAmount,
		RefundAmount:       r.RefundAmount,
		Status:             string(r.Status),
		PaymentStatus:      string(r.PaymentStatus),
		CancellationReason: string(r.CancellationReason),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ConfirmedAt:        r.ConfirmedAt,
		CheckedInAt:        r.CheckedInAt,
		CheckedOutAt:       r.CheckedOutAt,
		CancelledAt:        r.CancelledAt,
		NoShowAt:           r.NoShowAt,
		CompletedAt:        r.CompletedAt,
		Version:            r.Version,
	}
	if r.IdempotencyKey != "" {
		key := r.IdempotencyKey
		row.IdempotencyKey = &key
	}
	return row
}

func (row *reservationRow) toEntity() reservation.Reservation {
	r := reservation.Reservation{
		ID:                 row.ID,
		ConfirmationCode:   row.ConfirmationCode,
		RoomID:             row.RoomID,
		GuestID:            row.GuestID,
		Stay:               stay.NewDateRange(row.CheckIn, row.CheckOut),
		Adults:             row.Adults,
		Children:           row.Children,
		TotalAmount:        row.TotalAmount,
		RefundAmount:       row.RefundAmount,
		Status:             reservation.Status(row.Status),
		PaymentStatus:      reservation.PaymentStatus(row.PaymentStatus),
		CancellationReason: reservation.CancellationReason(row.CancellationReason),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
		ConfirmedAt:        row.ConfirmedAt,
		CheckedInAt:        row.CheckedInAt,
		CheckedOutAt:       row.CheckedOutAt,
		CancelledAt:        row.CancelledAt,
		NoShowAt:           row.NoShowAt,
		CompletedAt:        row.CompletedAt,
		Version:            row.Version,
	}
	if row.IdempotencyKey != nil {
		r.IdempotencyKey = *row.IdempotencyKey
	}
	return r
}

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res reservation.Reservation) error {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO reservations (` + reservationColumns + `) VALUES (
		:id, :confirmation_code, :room_id, :guest_id, :check_in, :check_out, :adults, :children,
		:total_amount, :refund_amount, :status, :payment_status, :idempotency_key, :cancellation_reason,
		:created_at, :updated_at, :confirmed_at, :checked_in_at, :checked_out_at, :cancelled_at, :no_show_at, :completed_at, :version)`
	if _, err := sqlTx.NamedExecContext(ctx, query, toRow(res)); err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.Constraint == "idx_reservations_idempotency_key" {
				return reservation.ErrIdempotencyKeyAlreadyExists
			}
			return apperror.Conflict(fmt.Sprintf("予約の一意制約に違反しました: %s", pgErr.Constraint))
		}
		return apperror.Infrastructure("予約作成に失敗しました", err)
	}
	return nil
}

func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res reservation.Reservation) error {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return err
	}
	query := `UPDATE reservations SET
		refund_amount = :refund_amount, status = :status, payment_status = :payment_status,
		cancellation_reason = :cancellation_reason, updated_at = :updated_at,
		confirmed_at = :confirmed_at, checked_in_at = :checked_in_at, checked_out_at = :checked_out_at,
		cancelled_at = :cancelled_at, no_show_at = :no_show_at, completed_at = :completed_at,
		version = :version
		WHERE id = :id AND version = :version - 1`
	result, err := sqlTx.NamedExecContext(ctx, query, toRow(res))
	if err != nil {
		return apperror.Infrastructure("予約更新に失敗しました", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperror.Infrastructure("予約更新件数の取得に失敗しました", err)
	}
	if rows == 0 {
		var exists bool
		if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, res.ID); err != nil {
			return apperror.Infrastructure("予約の存在確認に失敗しました", err)
		}
		if !exists {
			return reservation.ErrReservationNotFound
		}
		return reservation.ErrConcurrentModification
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (reservation.Reservation, error) {
	return r.getOne(ctx, r.db, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
}

func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (reservation.Reservation, error) {
	sqlTx, err := requireTx(tx)
	if err != nil {
		return reservation.Reservation{}, err
	}
	return r.getOne(ctx, sqlTx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) GetByConfirmationCode(ctx context.Context, code string) (reservation.Reservation, error) {
	return r.getOne(ctx, r.db, `SELECT `+reservationColumns+` FROM reservations WHERE confirmation_code = $1`, code)
}

func (r *ReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (reservation.Reservation, error) {
	return r.getOne(ctx, r.db, `SELECT `+reservationColumns+` FROM reservations WHERE idempotency_key = $1`, key)
}

func (r *ReservationRepository) ListHoldingByRoom(ctx context.Context, tx transaction.Tx, roomID string, rng stay.DateRange) ([]reservation.Reservation, error) {
	var q sqlx.QueryerContext = r.db
	if sqlTx := UnwrapTx(tx); sqlTx != nil {
		q = sqlTx
	}
	return r.list(ctx, q, `SELECT `+reservationColumns+` FROM reservations
		WHERE room_id = $1 AND status = ANY($4) AND check_in < $3 AND check_out > $2
		ORDER BY check_in`, roomID, rng.CheckIn, rng.CheckOut, pq.Array(holdingStatuses))
}

func (r *ReservationRepository) ListByGuest(ctx context.Context, guestID string, limit, offset int) ([]reservation.Reservation, error) {
	return r.list(ctx, r.db, `SELECT `+reservationColumns+` FROM reservations
		WHERE guest_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, guestID, limit, offset)
}

func (r *ReservationRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]reservation.Reservation, error) {
	return r.list(ctx, r.db, `SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at LIMIT $2`, before, limit)
}

func (r *ReservationRepository) ListNoShowCandidates(ctx context.Context, today time.Time, limit int) ([]reservation.Reservation, error) {
	return r.list(ctx, r.db, `SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'CONFIRMED' AND checked_in_at IS NULL AND check_in < $1 ORDER BY check_in LIMIT $2`, today, limit)
}

func (r *ReservationRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (reservation.Reservation, error) {
	var row reservationRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reservation.Reservation{}, reservation.ErrReservationNotFound
		}
		return reservation.Reservation{}, apperror.Infrastructure("予約取得に失敗しました", err)
	}
	return row.toEntity(), nil
}

func (r *ReservationRepository) list(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]reservation.Reservation, error) {
	var rows []reservationRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, apperror.Infrastructure("予約一覧取得に失敗しました", err)
	}
	result := make([]reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}
