package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LogFileName is the file, inside the consumer's log directory, that
// receives one line per confirmed registration.
const LogFileName = "registrations.log"

// errMalformedMessage marks a delivery that can never succeed, so it is
// dropped instead of requeued.
var errMalformedMessage = errors.New("malformed registration message")

// Consumer reads registration.confirmed messages and appends each one to
// a log file.
type Consumer struct {
	URL    string
	Queue  string
	LogDir string
	Logger *slog.Logger
	// RetryDelay is the pause before a failed delivery is requeued.
	RetryDelay time.Duration
}

// NewConsumer returns a Consumer with defaults filled in.
func NewConsumer(url, queue, logDir string, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueueName
	}
	if logDir == "" {
		logDir = "logs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{URL: url, Queue: queue, LogDir: logDir, Logger: logger, RetryDelay: time.Second}
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial
// failures and dropped connections are retried with exponential backoff
// capped at 30s.  It returns ctx.Err() once the context is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("registration consumer: dial failed", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("registration consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("registration consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(ctx, d)
		}
	}
}

// settle handles one delivery and acks it.  Malformed messages are dropped;
// any other failure is requeued after RetryDelay.
func (c *Consumer) settle(ctx context.Context, d amqp.Delivery) {
	err := c.HandleMessage(d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errMalformedMessage):
		c.Logger.Error("registration consumer: dropping malformed message", "error", err)
		_ = d.Nack(false, false)
	default:
		c.Logger.Warn("registration consumer: handle message failed, requeueing", "error", err)
		sleep(ctx, c.RetryDelay)
		_ = d.Nack(false, true)
	}
}

// HandleMessage decodes one message and appends a line describing it to
// the registrations log.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev RegistrationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	if ev.RegistrationID == "" || ev.TicketID == "" {
		return fmt.Errorf("%w: missing registration or ticket id", errMalformedMessage)
	}
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.LogDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human friendly log line.
func FormatLine(ev RegistrationConfirmedEvent) string {
	return fmt.Sprintf("[%s] Registration confirmed | ticket=%s | registration_id=%s | event_id=%s | event=%q | venue=%q | starts=%s | user_id=%s | name=%q | payment=%s | price=%s\n",
		ev.RegisteredAt, ev.TicketID, ev.RegistrationID, ev.EventID, ev.EventTitle, ev.Venue, ev.EventStarts,
		ev.UserID, ev.Name, ev.PaymentStatus, ev.Price)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
