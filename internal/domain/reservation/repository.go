package reservation

import (
	"context"
	"time"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, r Reservation) error

	// Update は予約を更新する（トランザクション必須）
	// 保存済みのバージョンが r.Version-1 でなければ ErrConcurrentModification を返す
	Update(ctx context.Context, tx transaction.Tx, r Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (Reservation, error)

	// GetByIDForUpdate はトランザクション内で行ロックを取って予約を取得する
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (Reservation, error)

	// GetByConfirmationCode は確認コードから予約を取得する
	GetByConfirmationCode(ctx context.Context, code string) (Reservation, error)

	// GetByIdempotencyKey は冪等性キーから予約を取得する
	GetByIdempotencyKey(ctx context.Context, key string) (Reservation, error)

	// ListHoldingByRoom は客室の区間と重なる在庫確保中の予約を取得する
	ListHoldingByRoom(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange) ([]Reservation, error)

	// ListByGuest はゲストの予約一覧を作成日時の降順で取得する
	ListByGuest(ctx context.Context, guestID string, limit, offset int) ([]Reservation, error)

	// ListExpiredPending は before より前に作成された保留中予約を取得する
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]Reservation, error)

	// ListNoShowCandidates はチェックイン日が today より前でチェックインしていない確定済み予約を取得する
	ListNoShowCandidates(ctx context.Context, today time.Time, limit int) ([]Reservation, error)
}
