package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/yevea-countertop/internal/obs"
)

// TypeSend is the asynq task type for receipt delivery.
const TypeSend = "receipt:send"

// DefaultQueue is the asynq queue receipt tasks are published on.
const DefaultQueue = "receipts"

const (
	defaultMaxRetry  = 5
	defaultRetention = 24 * time.Hour
)

// Line is one purchased countertop.
type Line struct {
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
}

// Receipt summarises a checkout that reached the payment gateway.
type Receipt struct {
	SessionID      string          `json:"sessionId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Currency       string          `json:"currency"`
	Lines          []Line          `json:"lines"`
	Total          decimal.Decimal `json:"total"`
	RedirectURL    string          `json:"redirectUrl"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Enqueuer hands receipts to background delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, r Receipt) error
}

// TaskClient is the subset of *asynq.Client used here.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqEnqueuer schedules receipts as asynq tasks keyed by idempotency key,
// so a repeated checkout of the same cart enqueues at most one receipt.
type AsynqEnqueuer struct {
	Client    TaskClient
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// NewTask encodes r as a receipt task.
func NewTask(r Receipt) (*asynq.Task, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSend, payload), nil
}

// Enqueue schedules r. A task id conflict means the receipt is already queued.
func (e AsynqEnqueuer) Enqueue(ctx context.Context, r Receipt) error {
	if e.Client == nil {
		return errors.New("receipt: task client not configured")
	}
	task, err := NewTask(r)
	if err != nil {
		obs.ObserveReceipt("enqueue", "error")
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(valueOr(e.Queue, DefaultQueue)),
		asynq.MaxRetry(intOr(e.MaxRetry, defaultMaxRetry)),
		asynq.Retention(durationOr(e.Retention, defaultRetention)),
	}
	if r.IdempotencyKey != "" {
		opts = append(opts, asynq.TaskID(TypeSend+":"+r.IdempotencyKey))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			obs.ObserveReceipt("enqueue", "duplicate")
			return nil
		}
		obs.ObserveReceipt("enqueue", "error")
		return fmt.Errorf("receipt: enqueue: %w", err)
	}
	obs.ObserveReceipt("enqueue", "ok")
	return nil
}

// Handler processes receipt tasks. Delivery is a structured log entry per line.
type Handler struct {
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var r Receipt
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		obs.ObserveReceipt("process", "malformed")
		return fmt.Errorf("receipt: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(r.Lines) == 0 {
		obs.ObserveReceipt("process", "malformed")
		return fmt.Errorf("receipt: no lines: %w", asynq.SkipRetry)
	}
	logger := h.Logger.With().
		Str("session_id", r.SessionID).
		Str("idempotency_key", r.IdempotencyKey).
		Logger()
	for i, line := range r.Lines {
		logger.Info().
			Int("line", i+1).
			Str("product", line.ProductName).
			Str("price", line.Price.StringFixed(2)).
			Str("currency", r.Currency).
			Msg("receipt line")
	}
	logger.Info().Str("total", r.Total.StringFixed(2)).Str("currency", r.Currency).Msg("receipt sent")
	obs.ObserveReceipt("process", "ok")
	return nil
}

// Register mounts the receipt handler on mux.
func (h Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeSend, h)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
