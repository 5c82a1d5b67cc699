package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
)

var ErrNotConfirmed = errors.New("ブローカーがメッセージを受理しませんでした")

// Publisher はドメインイベントを topic exchange に送信する
// ルーティングキーはイベント種別（例: reservation.cancelled）
type Publisher struct {
	conn     *amqp.Connection
	exchange string

	mu       sync.Mutex
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
}

// NewPublisher は RabbitMQ に接続し、exchange を宣言する
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("チャンネル作成に失敗しました: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("exchange宣言に失敗しました: %w", err)
	}

	// 受理確認を待つことで少なくとも1回の配送にする
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("confirmモードの設定に失敗しました: %w", err)
	}

	logger.Info("RabbitMQに接続しました", zap.String("exchange", exchange))
	return &Publisher{
		conn:     conn,
		exchange: exchange,
		channel:  ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Publish はイベントを JSON で送信し、ブローカーの受理を待つ
func (p *Publisher) Publish(ctx context.Context, e reservation.DomainEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Publish(
		p.exchange, // exchange
		e.Type,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    e.OccurredAt,
			Type:         e.Type,
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("イベント送信に失敗: %w", err)
	}

	select {
	case c, ok := <-p.confirms:
		if !ok {
			return fmt.Errorf("イベント送信に失敗: チャンネルが閉じられました")
		}
		if !c.Ack {
			return ErrNotConfirmed
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("受理確認の待機を中断: %w", ctx.Err())
	}
}

// Close はチャンネルと接続を閉じる
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
