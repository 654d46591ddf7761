package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/openbid/auction-engine/internal/utils"
)

const notificationsQueue = "auction.notifications"

// StartNotificationConsumer connects to RabbitMQ, declares the durable
// auction.notifications queue, and drains it. Each message is appended
// as a single human-readable line to logs/notifications.log, standing in
// for the external email/payment collaborator. The consumer runs a
// reconnect loop with exponential backoff and keeps going across broker
// restarts; malformed messages are rejected without requeue so a poison
// message cannot wedge the queue.
func StartNotificationConsumer(url string) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			utils.Warn("notification-consumer: dial failed", map[string]any{
				"error": err.Error(), "retry_in": backoff.String(),
			})
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			utils.Warn("notification-consumer: consume loop ended", map[string]any{"error": err.Error()})
			_ = conn.Close()
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		utils.Warn("notification-consumer: set QoS failed", map[string]any{"error": err.Error()})
	}

	if _, err := ch.QueueDeclare(notificationsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(notificationsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			utils.Error("notification-consumer: handle message failed", map[string]any{"error": err.Error()})
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "notifications.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatNotification(n)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatNotification(n Notification) string {
	switch n.Kind {
	case KindOutbid:
		if n.Outbid != nil {
			return fmt.Sprintf("[%s] Outbid | auction_id=%d | bidder_id=%d | new_amount=%s\n",
				n.EmittedAt, n.AuctionID, n.Outbid.BidderID, n.Outbid.NewAmount)
		}
	case KindSellerNewBid:
		if n.SellerNewBid != nil {
			return fmt.Sprintf("[%s] New bid | auction_id=%d | seller_id=%d | bidder_id=%d | amount=%s\n",
				n.EmittedAt, n.AuctionID, n.SellerNewBid.SellerID, n.SellerNewBid.BidderID, n.SellerNewBid.Amount)
		}
	case KindAuctionEnded:
		if n.AuctionEnded != nil {
			winner := "none"
			amount := "-"
			if n.AuctionEnded.WinnerID != nil {
				winner = fmt.Sprintf("%d", *n.AuctionEnded.WinnerID)
			}
			if n.AuctionEnded.WinningAmount != nil {
				amount = *n.AuctionEnded.WinningAmount
			}
			return fmt.Sprintf("[%s] Auction ended | auction_id=%d | seller_id=%d | winner_id=%s | winning_amount=%s\n",
				n.EmittedAt, n.AuctionID, n.AuctionEnded.SellerID, winner, amount)
		}
	case KindEndingSoon:
		if n.EndingSoon != nil {
			ids := make([]string, 0, len(n.EndingSoon.ParticipantIDs))
			for _, id := range n.EndingSoon.ParticipantIDs {
				ids = append(ids, fmt.Sprintf("%d", id))
			}
			return fmt.Sprintf("[%s] Ending soon | auction_id=%d | seconds_remaining=%d | participants=[%s]\n",
				n.EmittedAt, n.AuctionID, n.EndingSoon.SecondsRemaining, strings.Join(ids, ","))
		}
	}
	return fmt.Sprintf("[%s] Unknown notification | kind=%s | auction_id=%d\n", n.EmittedAt, n.Kind, n.AuctionID)
}
