// Package service implements the engine's external collaborators, most
// importantly the notification dispatcher backed by RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/queue"
	"github.com/openbid/auction-engine/internal/utils"
)

// NotificationsQueue is the durable queue every dispatcher call is
// published to.
const NotificationsQueue = "auction.notifications"

// AMQPDispatcher publishes dispatcher calls as persistent JSON messages.
// The broker's durability and the consumer's redelivery provide the
// at-least-once retry the contract demands; the engine itself fires each
// call exactly once and moves on. The connection is opened lazily and
// re-opened after a failure, so a broker restart costs one failed
// publish, not a stuck engine.
type AMQPDispatcher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPDispatcher creates a dispatcher that will connect to the given
// AMQP URL on first use.
func NewAMQPDispatcher(url string) *AMQPDispatcher {
	return &AMQPDispatcher{url: url}
}

// channel returns a usable channel with the queue declared, dialing if
// needed. Callers must hold d.mu.
func (d *AMQPDispatcher) channel() (*amqp.Channel, error) {
	if d.ch != nil && !d.ch.IsClosed() {
		return d.ch, nil
	}
	conn, err := amqp.Dial(d.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Durable queue so messages survive broker restarts.
	if _, err := ch.QueueDeclare(NotificationsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	d.conn = conn
	d.ch = ch
	return ch, nil
}

func (d *AMQPDispatcher) publish(ctx context.Context, n queue.Notification) error {
	n.ID = uuid.New().String()
	n.EmittedAt = time.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ch, err := d.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",                 // default exchange
		NotificationsQueue, // routing key = queue name
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		// Drop the broken connection; the next call redials.
		_ = d.ch.Close()
		_ = d.conn.Close()
		d.ch, d.conn = nil, nil
		return fmt.Errorf("publish notification: %w", err)
	}
	utils.Info("dispatcher: notification published", map[string]any{
		"kind": n.Kind, "auction_id": n.AuctionID,
	})
	return nil
}

// NotifyOutbid tells a previous bidder they were outbid.
func (d *AMQPDispatcher) NotifyOutbid(ctx context.Context, previousBidderID, auctionID uint64, newAmount decimal.Decimal) error {
	return d.publish(ctx, queue.Notification{
		Kind:      queue.KindOutbid,
		AuctionID: auctionID,
		Outbid: &queue.OutbidNotice{
			BidderID:  previousBidderID,
			NewAmount: newAmount.StringFixed(2),
		},
	})
}

// NotifySellerNewBid tells the seller a bid arrived on their auction.
func (d *AMQPDispatcher) NotifySellerNewBid(ctx context.Context, sellerID, auctionID uint64, amount decimal.Decimal, bidderID uint64) error {
	return d.publish(ctx, queue.Notification{
		Kind:      queue.KindSellerNewBid,
		AuctionID: auctionID,
		SellerNewBid: &queue.SellerNewBidNotice{
			SellerID: sellerID,
			BidderID: bidderID,
			Amount:   amount.StringFixed(2),
		},
	})
}

// NotifyAuctionEnded reports the terminal outcome; winner fields are nil
// for a no-bid auction.
func (d *AMQPDispatcher) NotifyAuctionEnded(ctx context.Context, auctionID uint64, winnerID *uint64, winningAmount *decimal.Decimal, sellerID uint64) error {
	notice := &queue.AuctionEndedNotice{SellerID: sellerID, WinnerID: winnerID}
	if winningAmount != nil {
		s := winningAmount.StringFixed(2)
		notice.WinningAmount = &s
	}
	return d.publish(ctx, queue.Notification{
		Kind:         queue.KindAuctionEnded,
		AuctionID:    auctionID,
		AuctionEnded: notice,
	})
}

// NotifyEndingSoon reminds participants shortly before the deadline.
func (d *AMQPDispatcher) NotifyEndingSoon(ctx context.Context, participantIDs []uint64, auctionID uint64, secondsRemaining int64) error {
	return d.publish(ctx, queue.Notification{
		Kind:      queue.KindEndingSoon,
		AuctionID: auctionID,
		EndingSoon: &queue.EndingSoonNotice{
			ParticipantIDs:   participantIDs,
			SecondsRemaining: secondsRemaining,
		},
	})
}
