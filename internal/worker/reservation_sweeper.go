package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
)

// ReservationSweeperService は定期的な予約の後始末を行うインターフェース
type ReservationSweeperService interface {
	CancelExpiredReservations(ctx context.Context, expireAfter time.Duration) (int, error)
	MarkNoShows(ctx context.Context) (int, error)
}

// ReservationSweeper は期限切れの保留中予約の取り消しとノーショーの記録を行うワーカー
type ReservationSweeper struct {
	reservationService ReservationSweeperService
	interval           time.Duration
	expireAfter        time.Duration
	stopCh             chan struct{}
	doneCh             chan struct{}
}

// NewReservationSweeper は新しいスイーパーを作成
func NewReservationSweeper(
	rs ReservationSweeperService,
	interval time.Duration,
	expireAfter time.Duration,
) *ReservationSweeper {
	return &ReservationSweeper{
		reservationService: rs,
		interval:           interval,
		expireAfter:        expireAfter,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *ReservationSweeper) Start(ctx context.Context) {
	logger.Info("予約スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("expire_after", s.expireAfter),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("予約スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("予約スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *ReservationSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は期限切れ予約を取り消し、チェックインされなかった予約をノーショーにする
func (s *ReservationSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("予約スイープ開始")

	expired, err := s.reservationService.CancelExpiredReservations(ctx, s.expireAfter)
	if err != nil {
		log.Error("期限切れ予約の取り消し失敗", zap.Error(err))
	} else if expired > 0 {
		log.Info("期限切れ予約を取り消し", zap.Int("count", expired))
	}

	noShows, err := s.reservationService.MarkNoShows(ctx)
	if err != nil {
		log.Error("ノーショーの記録失敗", zap.Error(err))
	} else if noShows > 0 {
		log.Info("ノーショーを記録", zap.Int("count", noShows))
	}
}
