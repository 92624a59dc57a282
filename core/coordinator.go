package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/model"
	"github.com/signalsfoundry/cellular-simulator/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/exp/slices"
)

// Structural limits of a coordinator.
const (
	DefaultMaxTowers   = 100
	DefaultMaxMessages = 100000
	// DefaultMaxPayload is in bytes; longer payloads are truncated.
	DefaultMaxPayload = 255
)

const tracerName = "github.com/signalsfoundry/cellular-simulator/core"

// CoordinatorMetrics receives queue and routing outcomes.
type CoordinatorMetrics interface {
	ObserveEnqueue(accepted bool)
	ObserveBatch(delivered, dropped, overheadFailures int, elapsed time.Duration)
	SetQueueDepth(n int)
}

// MessageOutcome is what happened to one message during a drain.
type MessageOutcome struct {
	Message   model.Message `json:"message"`
	Delivered bool          `json:"delivered"`
	// Overhead is the tower protocol's estimate for a single message.
	Overhead int `json:"overhead"`
	// Reason explains a drop or a failed overhead estimate.
	Reason string `json:"reason,omitempty"`
}

// ProcessReport summarises one ProcessMessages pass.
type ProcessReport struct {
	Delivered        int              `json:"delivered"`
	Dropped          int              `json:"dropped"`
	VoiceDelivered   int              `json:"voice_delivered"`
	DataDelivered    int              `json:"data_delivered"`
	OverheadMessages int              `json:"overhead_messages"`
	OverheadFailures int              `json:"overhead_failures"`
	TotalProcessed   int64            `json:"total_processed"`
	Outcomes         []MessageOutcome `json:"outcomes,omitempty"`
}

// CoordinatorStatus is a read-only snapshot of a coordinator.
type CoordinatorStatus struct {
	ID             int   `json:"id"`
	Towers         int   `json:"towers"`
	Pending        int   `json:"pending"`
	Issued         int64 `json:"issued"`
	TotalProcessed int64 `json:"total_processed"`
	TotalDropped   int64 `json:"total_dropped"`
}

// Coordinator owns a set of towers and a bounded FIFO of messages routed to
// them.
//
// mu guards the queue and the counters only. It is held for the enqueue
// append and for the drain swap, never across tower lookups or per-message
// work, so producers are never blocked by a drain in progress.
type Coordinator struct {
	id int

	mu             sync.Mutex
	queue          []model.Message
	issued         int64
	totalProcessed int64
	totalDropped   int64

	towersMu sync.RWMutex
	towers   map[int]*Tower

	maxTowers   int
	maxMessages int
	maxPayload  int

	log     logging.Logger
	metrics CoordinatorMetrics
}

// CoordinatorOption customises Coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithQueueLimit bounds the number of pending messages.
func WithQueueLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxMessages = n
		}
	}
}

// WithPayloadLimit bounds payload length in bytes.
func WithPayloadLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// WithTowerLimit bounds the number of registered towers.
func WithTowerLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxTowers = n
		}
	}
}

// WithCoordinatorLogger attaches a structured logger.
func WithCoordinatorLogger(l logging.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCoordinatorMetrics attaches a metrics recorder.
func WithCoordinatorMetrics(m CoordinatorMetrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator builds an empty coordinator.
func NewCoordinator(id int, opts ...CoordinatorOption) (*Coordinator, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: coordinator id must be positive, got %d", ErrInvalidArgument, id)
	}
	c := &Coordinator{
		id:          id,
		towers:      make(map[int]*Tower),
		maxTowers:   DefaultMaxTowers,
		maxMessages: DefaultMaxMessages,
		maxPayload:  DefaultMaxPayload,
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = c.log.With(logging.Int("coordinator_id", id))
	return c, nil
}

func (c *Coordinator) ID() int         { return c.id }
func (c *Coordinator) QueueLimit() int { return c.maxMessages }

// AddTower registers t. Tower ids are unique per coordinator.
func (c *Coordinator) AddTower(t *Tower) error {
	if t == nil {
		return fmt.Errorf("%w: tower is nil", ErrInvalidTower)
	}

	c.towersMu.Lock()
	defer c.towersMu.Unlock()

	if _, exists := c.towers[t.ID()]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTower, t.ID())
	}
	if len(c.towers) >= c.maxTowers {
		return fmt.Errorf("%w: coordinator %d already has %d towers", ErrCapacityExceeded, c.id, len(c.towers))
	}
	c.towers[t.ID()] = t
	return nil
}

// Tower looks up a registered tower by id.
func (c *Coordinator) Tower(id int) (*Tower, error) {
	c.towersMu.RLock()
	defer c.towersMu.RUnlock()

	t, ok := c.towers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTowerNotFound, id)
	}
	return t, nil
}

// Towers returns the registered towers ordered by id.
func (c *Coordinator) Towers() []*Tower {
	c.towersMu.RLock()
	out := make([]*Tower, 0, len(c.towers))
	for _, t := range c.towers {
		out = append(out, t)
	}
	c.towersMu.RUnlock()

	slices.SortFunc(out, func(a, b *Tower) int { return a.ID() - b.ID() })
	return out
}

// GenerateMessage enqueues a message and returns its id. Ids form a
// strictly increasing sequence starting at 1 for the lifetime of the
// coordinator, independent of queue length, drains and drops; rejected
// messages consume no id. It never blocks: a full queue
// yields ErrQueueFull. Payloads longer than the payload limit are
// truncated.
func (c *Coordinator) GenerateMessage(ctx context.Context, fromDeviceID, toTowerID int, isVoice bool, payload string) (int64, error) {
	payload = truncatePayload(payload, c.maxPayload)

	c.mu.Lock()
	if len(c.queue) >= c.maxMessages {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.ObserveEnqueue(false)
		}
		return 0, fmt.Errorf("%w: %d messages pending", ErrQueueFull, c.maxMessages)
	}
	c.issued++
	id := c.issued
	c.queue = append(c.queue, model.Message{
		ID:           id,
		FromDeviceID: fromDeviceID,
		ToTowerID:    toTowerID,
		IsVoice:      isVoice,
		Payload:      payload,
	})
	depth := len(c.queue)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveEnqueue(true)
		c.metrics.SetQueueDepth(depth)
	}
	return id, nil
}

// ProcessMessages takes the whole pending queue and routes each message in
// FIFO order. A message whose tower is not registered is dropped and
// counted; a failing overhead estimate is reported on the outcome. Neither
// stops the batch.
func (c *Coordinator) ProcessMessages(ctx context.Context) ProcessReport {
	start := time.Now()

	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	var report ProcessReport
	if len(batch) == 0 {
		c.mu.Lock()
		report.TotalProcessed = c.totalProcessed
		c.mu.Unlock()
		c.log.Debug(ctx, "no messages to process")
		return report
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "Coordinator.ProcessMessages")
	defer span.End()
	span.SetAttributes(
		attribute.Int("coordinator.id", c.id),
		attribute.Int("batch.size", len(batch)),
	)

	report.Outcomes = make([]MessageOutcome, 0, len(batch))
	for _, msg := range batch {
		out := MessageOutcome{Message: msg}

		tower, err := c.Tower(msg.ToTowerID)
		if err != nil {
			report.Dropped++
			out.Reason = err.Error()
			report.Outcomes = append(report.Outcomes, out)
			c.log.Warn(ctx, "message dropped",
				logging.Int64("message_id", msg.ID),
				logging.Int("to_tower_id", msg.ToTowerID),
				logging.Err(err),
			)
			continue
		}

		out.Delivered = true
		report.Delivered++
		if msg.IsVoice {
			report.VoiceDelivered++
		} else {
			report.DataDelivered++
		}

		est, err := estimateOverhead(tower.Protocol())
		if err != nil {
			report.OverheadFailures++
			out.Reason = err.Error()
			c.log.Warn(ctx, "overhead estimate failed",
				logging.Int64("message_id", msg.ID),
				logging.Int("tower_id", tower.ID()),
				logging.Err(err),
			)
		} else {
			out.Overhead = est
			report.OverheadMessages += est
		}
		report.Outcomes = append(report.Outcomes, out)

		c.log.Debug(ctx, "message delivered",
			logging.Int64("message_id", msg.ID),
			logging.Int("to_tower_id", msg.ToTowerID),
			logging.Int("from_device_id", msg.FromDeviceID),
			logging.String("kind", msg.Kind().String()),
			logging.Int("overhead_estimate", out.Overhead),
		)
	}

	c.mu.Lock()
	c.totalProcessed += int64(report.Delivered)
	c.totalDropped += int64(report.Dropped)
	report.TotalProcessed = c.totalProcessed
	depth := len(c.queue)
	c.mu.Unlock()

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.ObserveBatch(report.Delivered, report.Dropped, report.OverheadFailures, elapsed)
		c.metrics.SetQueueDepth(depth)
	}

	span.SetAttributes(
		attribute.Int("batch.delivered", report.Delivered),
		attribute.Int("batch.dropped", report.Dropped),
	)
	if report.Dropped > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d messages dropped", report.Dropped))
	}

	c.log.Info(ctx, "processed message batch",
		logging.Int("delivered", report.Delivered),
		logging.Int("dropped", report.Dropped),
		logging.Int("overhead_failures", report.OverheadFailures),
		logging.Int64("total_processed", report.TotalProcessed),
		logging.String("elapsed", elapsed.String()),
	)
	return report
}

// Pending returns the number of queued messages.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// TotalProcessed returns the cumulative number of delivered messages.
func (c *Coordinator) TotalProcessed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalProcessed
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status() CoordinatorStatus {
	c.towersMu.RLock()
	towers := len(c.towers)
	c.towersMu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return CoordinatorStatus{
		ID:             c.id,
		Towers:         towers,
		Pending:        len(c.queue),
		Issued:         c.issued,
		TotalProcessed: c.totalProcessed,
		TotalDropped:   c.totalDropped,
	}
}

// estimateOverhead asks p for the overhead of a single message. Protocol
// implementations outside this module may panic; that is reported as an
// error instead of aborting the batch.
func estimateOverhead(p protocol.Protocol) (n int, err error) {
	if p == nil {
		return 0, errors.New("tower has no protocol")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("overhead estimate for %q panicked: %v", p.Name(), r)
		}
	}()
	return p.Overhead(1), nil
}

// truncatePayload cuts s to at most limit bytes without splitting a rune.
func truncatePayload(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
