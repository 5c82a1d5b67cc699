package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockReservationSweeperService はReservationSweeperServiceのモック
type MockReservationSweeperService struct {
	mock.Mock
}

func (m *MockReservationSweeperService) CancelExpiredReservations(ctx context.Context, expireAfter time.Duration) (int, error) {
	args := m.Called(ctx, expireAfter)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationSweeperService) MarkNoShows(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestNewReservationSweeper(t *testing.T) {
	mockService := new(MockReservationSweeperService)
	interval := 1 * time.Minute
	expireAfter := 30 * time.Minute

	sweeper := NewReservationSweeper(mockService, interval, expireAfter)

	assert.NotNil(t, sweeper)
	assert.Equal(t, interval, sweeper.interval)
	assert.Equal(t, expireAfter, sweeper.expireAfter)
	assert.NotNil(t, sweeper.stopCh)
	assert.NotNil(t, sweeper.doneCh)
}

func TestReservationSweeper_Sweep(t *testing.T) {
	t.Run("期限切れの取り消しとノーショーの記録を両方行う", func(t *testing.T) {
		mockService := new(MockReservationSweeperService)
		mockService.On("CancelExpiredReservations", mock.Anything, 30*time.Minute).Return(3, nil)
		mockService.On("MarkNoShows", mock.Anything).Return(1, nil)

		sweeper := NewReservationSweeper(mockService, time.Minute, 30*time.Minute)
		sweeper.sweep(context.Background())

		mockService.AssertExpectations(t)
	})

	t.Run("対象がない場合も正常に動作する", func(t *testing.T) {
		mockService := new(MockReservationSweeperService)
		mockService.On("CancelExpiredReservations", mock.Anything, 30*time.Minute).Return(0, nil)
		mockService.On("MarkNoShows", mock.Anything).Return(0, nil)

		sweeper := NewReservationSweeper(mockService, time.Minute, 30*time.Minute)
		sweeper.sweep(context.Background())

		mockService.AssertExpectations(t)
	})

	t.Run("取り消しが失敗してもノーショーの記録は行う", func(t *testing.T) {
		mockService := new(MockReservationSweeperService)
		mockService.On("CancelExpiredReservations", mock.Anything, 30*time.Minute).Return(0, assert.AnError)
		mockService.On("MarkNoShows", mock.Anything).Return(2, nil)

		sweeper := NewReservationSweeper(mockService, time.Minute, 30*time.Minute)
		sweeper.sweep(context.Background())

		mockService.AssertExpectations(t)
	})
}

func TestReservationSweeper_StartStop(t *testing.T) {
	t.Run("開始と停止が正常に動作する", func(t *testing.T) {
		mockService := new(MockReservationSweeperService)
		// sweep が呼ばれる可能性があるので、任意回数マッチさせる
		mockService.On("CancelExpiredReservations", mock.Anything, 100*time.Millisecond).Return(0, nil).Maybe()
		mockService.On("MarkNoShows", mock.Anything).Return(0, nil).Maybe()

		sweeper := NewReservationSweeper(mockService, 50*time.Millisecond, 100*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go sweeper.Start(ctx)
		time.Sleep(120 * time.Millisecond)
		sweeper.Stop()

		select {
		case <-sweeper.doneCh:
		case <-time.After(1 * time.Second):
			t.Error("sweeper did not stop in time")
		}
	})

	t.Run("コンテキストキャンセルで停止する", func(t *testing.T) {
		mockService := new(MockReservationSweeperService)
		mockService.On("CancelExpiredReservations", mock.Anything, 100*time.Millisecond).Return(0, nil).Maybe()
		mockService.On("MarkNoShows", mock.Anything).Return(0, nil).Maybe()

		sweeper := NewReservationSweeper(mockService, 50*time.Millisecond, 100*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sweeper.Start(ctx)
			close(done)
		}()

		time.Sleep(80 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.Error("sweeper did not stop after context cancel")
		}
	})
}
