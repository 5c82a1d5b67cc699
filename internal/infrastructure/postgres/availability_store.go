package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

const availabilityColumns = `room_id, stay_date, available_units, total_units, min_rate, max_rate, override_status, version, updated_at`

type availabilityRow struct {
	RoomID         string          `db:"room_id"`
	StayDate       time.Time       `db:"stay_date"`
	AvailableUnits int             `db:"available_units"`
	TotalUnits     int             `db:"total_units"`
	MinRate        decimal.Decimal `db:"min_rate"`
	MaxRate        decimal.Decimal `db:"max_rate"`
	OverrideStatus string          `db:"override_status"`
	Version        int             `db:"version"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (row *availabilityRow) toEntity() *availability.Record {
	return &availability.Record{
		RoomID:         row.RoomID,
		Date:           stay.Date(row.StayDate),
		AvailableUnits: row.AvailableUnits,
		TotalUnits:     row.TotalUnits,
		MinRate:        row.MinRate,
		MaxRate:        row.MaxRate,
		Override:       availability.Status(row.OverrideStatus),
		Version:        row.Version,
		UpdatedAt:      row.UpdatedAt,
	}
}

// AvailabilityStore は room_availability テーブルによる在庫ストア
// 確保・解放は対象の行を日付順に FOR UPDATE でロックしてから条件付き UPDATE で行う
type AvailabilityStore struct{ db *sqlx.DB }

func NewAvailabilityStore(db *sqlx.DB) *AvailabilityStore {
	return &AvailabilityStore{db: db}
}

func (s *AvailabilityStore) Setup(ctx context.Context, records []*availability.Record) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperror.Infrastructure("トランザクション開始に失敗しました", err)
	}
	defer tx.Rollback()

	// 既存の日付は確保済みの室数を保ったまま総室数と料金を更新する
	query := `INSERT INTO room_availability (room_id, stay_date, available_units, total_units, min_rate, max_rate, version, updated_at)
		VALUES ($1, $2, $3, $3, $4, $5, 0, NOW())
		ON CONFLICT (room_id, stay_date) DO UPDATE SET
			available_units = EXCLUDED.total_units - (room_availability.total_units - room_availability.available_units),
			total_units = EXCLUDED.total_units,
			min_rate = EXCLUDED.min_rate,
			max_rate = EXCLUDED.max_rate,
			version = room_availability.version + 1,
			updated_at = NOW()`
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query, rec.RoomID, stay.Date(rec.Date), rec.TotalUnits, rec.MinRate, rec.MaxRate); err != nil {
			var pgErr *pq.Error
			if errors.As(err, &pgErr) && pgErr.Code == "23514" {
				return fmt.Errorf("%w: %s", availability.ErrUnitsBelowHeld, stay.FormatDate(rec.Date))
			}
			return apperror.Infrastructure("在庫登録に失敗しました", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperror.Infrastructure("コミットに失敗しました", err)
	}
	return nil
}

func (s *AvailabilityStore) Get(ctx context.Context, roomID string, r stay.DateRange) ([]*availability.Record, error) {
	var rows []availabilityRow
	query := `SELECT ` + availabilityColumns + ` FROM room_availability WHERE room_id = $1 AND stay_date >= $2 AND stay_date < $3 ORDER BY stay_date`
	if err := s.db.SelectContext(ctx, &rows, query, roomID, r.CheckIn, r.CheckOut); err != nil {
		return nil, apperror.Infrastructure("在庫取得に失敗しました", err)
	}
	records := make([]*availability.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].toEntity()
	}
	return records, nil
}

// lockNights は区間の全泊の行を日付順にロックする。1泊でも未登録なら ErrInventoryNotSetUp
func lockNights(ctx context.Context, tx *sqlx.Tx, roomID string, r stay.DateRange) ([]availabilityRow, error) {
	var rows []availabilityRow
	query := `SELECT ` + availabilityColumns + ` FROM room_availability WHERE room_id = $1 AND stay_date >= $2 AND stay_date < $3 ORDER BY stay_date FOR UPDATE`
	if err := tx.SelectContext(ctx, &rows, query, roomID, r.CheckIn, r.CheckOut); err != nil {
		return nil, apperror.Infrastructure("在庫のロックに失敗しました", err)
	}
	if len(rows) != r.Nights() {
		return nil, fmt.Errorf("%w: %s %s", availability.ErrInventoryNotSetUp, roomID, r)
	}
	return rows, nil
}

func (s *AvailabilityStore) Reserve(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) (availability.Hold, error) {
	if err := availability.ValidateRequest(roomID, r, units); err != nil {
		return availability.Hold{}, err
	}
	sqlTx, err := requireTx(tx)
	if err != nil {
		return availability.Hold{}, err
	}

	rows, err := lockNights(ctx, sqlTx, roomID, r)
	if err != nil {
		return availability.Hold{}, err
	}
	for _, row := range rows {
		if availability.Status(row.OverrideStatus).IsOverride() {
			return availability.Hold{}, fmt.Errorf("%w: %s", availability.ErrRoomNotSellable, stay.FormatDate(row.StayDate))
		}
		if row.AvailableUnits < units {
			return availability.Hold{}, fmt.Errorf("%w: %s", availability.ErrRoomUnavailable, stay.FormatDate(row.StayDate))
		}
	}

	query := `UPDATE room_availability SET available_units = available_units - $4, version = version + 1, updated_at = NOW()
		WHERE room_id = $1 AND stay_date >= $2 AND stay_date < $3 AND available_units >= $4 AND override_status = ''`
	if err := execAllNights(ctx, sqlTx, r, availability.ErrRoomUnavailable, query, roomID, r.CheckIn, r.CheckOut, units); err != nil {
		return availability.Hold{}, err
	}
	return availability.Hold{RoomID: roomID, Stay: r, Units: units}, nil
}

func (s *AvailabilityStore) Release(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) error {
	if err := availability.ValidateRequest(roomID, r, units); err != nil {
		return err
	}
	sqlTx, err := requireTx(tx)
	if err != nil {
		return err
	}

	rows, err := lockNights(ctx, sqlTx, roomID, r)
	if err != nil {
		if errors.Is(err, availability.ErrInventoryNotSetUp) {
			return fmt.Errorf("%w: %v", availability.ErrHoldNotFound, err)
		}
		return err
	}
	for _, row := range rows {
		if row.AvailableUnits+units > row.TotalUnits {
			return fmt.Errorf("%w: %s", availability.ErrHoldNotFound, stay.FormatDate(row.StayDate))
		}
	}

	query := `UPDATE room_availability SET available_units = available_units + $4, version = version + 1, updated_at = NOW()
		WHERE room_id = $1 AND stay_date >= $2 AND stay_date < $3 AND available_units + $4 <= total_units`
	return execAllNights(ctx, sqlTx, r, availability.ErrHoldNotFound, query, roomID, r.CheckIn, r.CheckOut, units)
}

func (s *AvailabilityStore) SetOverride(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, status availability.Status) error {
	if status != "" && !status.IsOverride() {
		return availability.ErrInvalidOverride
	}
	if !r.IsValid() {
		return availability.ErrInvalidRange
	}
	sqlTx, err := requireTx(tx)
	if err != nil {
		return err
	}
	if _, err := lockNights(ctx, sqlTx, roomID, r); err != nil {
		return err
	}

	query := `UPDATE room_availability SET override_status = $4, version = version + 1, updated_at = NOW()
		WHERE room_id = $1 AND stay_date >= $2 AND stay_date < $3`
	return execAllNights(ctx, sqlTx, r, availability.ErrInventoryNotSetUp, query, roomID, r.CheckIn, r.CheckOut, string(status))
}

// execAllNights は UPDATE を実行し、更新行数が泊数と一致しなければ short を返す
func execAllNights(ctx context.Context, tx *sqlx.Tx, r stay.DateRange, short error, query string, args ...any) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperror.Infrastructure("在庫更新に失敗しました", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Infrastructure("在庫更新件数の取得に失敗しました", err)
	}
	if int(n) != r.Nights() {
		return fmt.Errorf("%w: %d/%d 泊のみ更新可能", short, n, r.Nights())
	}
	return nil
}
