// Package sim runs one end-to-end simulation: a tower for the chosen
// protocol, a population of devices, a burst of traffic and one drain of
// the coordinator queue.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/signalsfoundry/cellular-simulator/core"
	"github.com/signalsfoundry/cellular-simulator/internal/config"
	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/model"
	"github.com/signalsfoundry/cellular-simulator/protocol"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// ErrNoCapacity indicates the protocol and overhead leave room for no
// devices at all.
var ErrNoCapacity = errors.New("no devices can be supported")

// FirstDeviceID is the id base of generated devices: device i is
// FirstDeviceID+i, counting from 1.
const FirstDeviceID = 5000

// Metrics is what a run reports to; observability.Collector satisfies it.
type Metrics interface {
	core.TowerMetrics
	core.CoordinatorMetrics
}

// Report is the plain-data outcome of a run.
type Report struct {
	Protocol        protocol.Summary `json:"protocol"`
	TowerID         int              `json:"tower_id"`
	OverheadPercent int              `json:"overhead_percent"`
	// MaxDevices is the protocol capacity reduced by the overhead share
	// and bounded by the tower's device limit.
	MaxDevices int `json:"max_devices"`

	Attach AttachSummary `json:"attach"`

	FirstChannel       core.ChannelLoad `json:"first_channel"`
	PerChannelCapacity int              `json:"per_channel_capacity"`
	Channels           ChannelStats     `json:"channels"`

	Messages MessageSummary `json:"messages"`
	Traffic  TrafficStats   `json:"traffic"`

	RosterSkipped []core.RosterIssue `json:"roster_skipped,omitempty"`
}

// AttachSummary counts attach attempts by outcome.
type AttachSummary struct {
	Attempted int `json:"attempted"`
	Attached  int `json:"attached"`
	Failed    int `json:"failed"`
	// Failures maps a failure class to its count.
	Failures map[string]int `json:"failures,omitempty"`
}

// MessageSummary counts the messages of a run.
type MessageSummary struct {
	Requested int `json:"requested"`
	Generated int `json:"generated"`
	Enqueued  int `json:"enqueued"`
	Rejected  int `json:"rejected"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
	Voice     int `json:"voice"`
	Data      int `json:"data"`
	// OverheadMessages is the run-level estimate, requested * percent / 100.
	OverheadMessages int `json:"overhead_messages"`
	// ProtocolOverhead sums the tower protocol's per-message estimates.
	ProtocolOverhead int `json:"protocol_overhead"`
	OverheadFailures int `json:"overhead_failures"`
	DevicesUtilized  int `json:"devices_utilized"`
}

// Option customises a run.
type Option func(*runner)

// WithLogger attaches a structured logger to the run and to the tower and
// coordinator it builds.
func WithLogger(l logging.Logger) Option {
	return func(r *runner) { r.log = logging.OrNoop(l) }
}

// WithMetrics reports tower and coordinator activity to m.
func WithMetrics(m Metrics) Option {
	return func(r *runner) { r.metrics = m }
}

// WithRoster supplies the device population directly, bypassing both the
// generated devices and the configured roster file.
func WithRoster(roster *core.Roster) Option {
	return func(r *runner) { r.roster = roster }
}

type runner struct {
	cfg     config.Config
	log     logging.Logger
	metrics Metrics
	roster  *core.Roster
}

// TowerIDFor returns the tower id used for a protocol kind: 1 for 2G up to
// 5 for a custom plan.
func TowerIDFor(kind protocol.Kind) int { return int(kind) }

// MaxDevices reduces capacity by percent and bounds it by limit. Any
// positive capacity keeps room for at least one device.
func MaxDevices(capacity, percent, limit int) int {
	percent = protocol.ClampPercent(percent)
	n := capacity - (capacity*percent)/100
	if capacity > 0 && n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// Run executes one simulation described by cfg.
func Run(ctx context.Context, cfg config.Config, opts ...Option) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &runner{cfg: cfg, log: logging.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (*Report, error) {
	sim := r.cfg.Simulation
	percent := protocol.ClampPercent(sim.OverheadPercent)

	kind, err := protocol.ParseKind(sim.Protocol)
	if err != nil {
		return nil, err
	}
	params := sim.Custom
	params.OverheadPercent = percent
	proto, err := protocol.New(kind, params)
	if err != nil {
		return nil, fmt.Errorf("build %s protocol: %w", kind, err)
	}

	towerID := TowerIDFor(kind)
	log := r.log.With(logging.String("protocol", proto.Name()), logging.Int("tower_id", towerID))

	towerOpts := []core.TowerOption{
		core.WithDeviceLimit(r.cfg.Limits.MaxDevicesPerTower),
		core.WithTowerLogger(log),
	}
	coordOpts := []core.CoordinatorOption{
		core.WithQueueLimit(r.cfg.Limits.MaxMessages),
		core.WithPayloadLimit(r.cfg.Limits.MaxPayloadBytes),
		core.WithTowerLimit(r.cfg.Limits.MaxTowers),
		core.WithCoordinatorLogger(log),
	}
	if r.metrics != nil {
		towerOpts = append(towerOpts, core.WithTowerMetrics(r.metrics))
		coordOpts = append(coordOpts, core.WithCoordinatorMetrics(r.metrics))
	}

	tower, err := core.NewTower(towerID, proto, towerOpts...)
	if err != nil {
		return nil, err
	}
	coord, err := core.NewCoordinator(1, coordOpts...)
	if err != nil {
		return nil, err
	}
	if err := coord.AddTower(tower); err != nil {
		return nil, err
	}

	report := &Report{
		Protocol:           protocol.Describe(proto),
		TowerID:            towerID,
		OverheadPercent:    percent,
		MaxDevices:         MaxDevices(proto.MaxUsers(), percent, tower.DeviceLimit()),
		PerChannelCapacity: proto.UsersPerChannel(),
	}
	if report.MaxDevices <= 0 {
		return nil, fmt.Errorf("%w: %s with %d%% overhead", ErrNoCapacity, proto.Name(), percent)
	}
	log.Info(ctx, "simulation starting",
		logging.Int("max_devices", report.MaxDevices),
		logging.Int("overhead_percent", percent),
		logging.Int("messages", sim.Messages),
	)

	specs, err := r.devices(report)
	if err != nil {
		return nil, err
	}
	senders := r.attach(ctx, tower, specs, report)

	if loads := tower.Channels(); len(loads) > 0 {
		report.FirstChannel = loads[0]
		report.Channels = SummarizeChannels(loads)
	}

	arrivals, err := r.traffic(sim.Messages, coord.QueueLimit(), senders)
	if err != nil {
		return nil, err
	}
	report.Traffic = SummarizeArrivals(arrivals)
	report.Messages.Requested = sim.Messages
	report.Messages.Generated = len(arrivals)
	report.Messages.OverheadMessages = (sim.Messages * percent) / 100

	enqueued, rejected, err := r.enqueue(ctx, coord, towerID, arrivals)
	if err != nil {
		return nil, err
	}
	report.Messages.Enqueued = enqueued
	report.Messages.Rejected = rejected

	pr := coord.ProcessMessages(ctx)
	report.Messages.Delivered = pr.Delivered
	report.Messages.Dropped = pr.Dropped
	report.Messages.Voice = pr.VoiceDelivered
	report.Messages.Data = pr.DataDelivered
	report.Messages.ProtocolOverhead = pr.OverheadMessages
	report.Messages.OverheadFailures = pr.OverheadFailures
	report.Messages.DevicesUtilized = report.Attach.Attached

	log.Info(ctx, "simulation complete",
		logging.Int("attached", report.Attach.Attached),
		logging.Int("delivered", pr.Delivered),
		logging.Int("dropped", pr.Dropped),
	)
	return report, nil
}

// devices returns the population to attach: the roster when one is given,
// otherwise MaxDevices generated devices where every third is a voice
// device.
func (r *runner) devices(report *Report) ([]model.DeviceSpec, error) {
	roster := r.roster
	if roster == nil && r.cfg.Simulation.RosterFile != "" {
		loaded, err := core.LoadDeviceRosterFile(r.cfg.Simulation.RosterFile)
		if err != nil {
			return nil, err
		}
		roster = loaded
	}
	if roster != nil {
		report.RosterSkipped = roster.Skipped
		if len(roster.Devices) > report.MaxDevices {
			return roster.Devices[:report.MaxDevices], nil
		}
		return roster.Devices, nil
	}

	specs := make([]model.DeviceSpec, 0, report.MaxDevices)
	for i := 1; i <= report.MaxDevices; i++ {
		kind := model.ConnectionData
		if i%3 == 0 {
			kind = model.ConnectionVoice
		}
		specs = append(specs, model.DeviceSpec{ID: FirstDeviceID + i, Kind: kind})
	}
	return specs, nil
}

// attach connects every spec to tower and returns the ids that made it,
// in attachment order.
func (r *runner) attach(ctx context.Context, tower *core.Tower, specs []model.DeviceSpec, report *Report) []int {
	attached := make([]int, 0, len(specs))
	for _, spec := range specs {
		report.Attach.Attempted++

		d, err := core.NewDeviceFromSpec(spec)
		if err == nil {
			_, err = tower.Attach(ctx, d)
		}
		if err != nil {
			report.Attach.Failed++
			if report.Attach.Failures == nil {
				report.Attach.Failures = make(map[string]int)
			}
			report.Attach.Failures[failureClass(err)]++
			continue
		}
		report.Attach.Attached++
		attached = append(attached, spec.ID)
	}
	return attached
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, core.ErrDuplicateDevice):
		return core.ResultDuplicate
	case errors.Is(err, core.ErrCapacityExceeded):
		return core.ResultCapacity
	case errors.Is(err, core.ErrNoChannelAvailable):
		return core.ResultNoChannel
	default:
		return core.ResultInvalid
	}
}

// traffic builds the arrivals of a run, capped at the queue bound.
func (r *runner) traffic(requested, queueLimit int, senders []int) ([]Arrival, error) {
	n := min(requested, queueLimit)
	if len(senders) == 0 {
		return nil, nil
	}

	t := r.cfg.Traffic
	switch t.Model {
	case config.TrafficPoisson:
		src := &PoissonSource{Rate: t.RatePerSecond, VoiceRatio: t.VoiceRatio, Stream: t.Seed}
		return src.Generate(n, slices.Clone(senders))
	default:
		return PatternTraffic(n, senders), nil
	}
}

// enqueue hands arrivals to the coordinator from cfg.Traffic.Producers
// goroutines. Producer p sends arrivals p, p+P, p+2P and so on. A full
// queue rejects the message without stopping the producers.
func (r *runner) enqueue(ctx context.Context, coord *core.Coordinator, towerID int, arrivals []Arrival) (enqueued, rejected int, err error) {
	producers := max(r.cfg.Traffic.Producers, 1)
	var accepted, full atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := p; i < len(arrivals); i += producers {
				if err := gctx.Err(); err != nil {
					return err
				}
				a := arrivals[i]
				_, err := coord.GenerateMessage(gctx, a.From, towerID, a.Voice, a.Payload)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, core.ErrQueueFull):
					full.Add(1)
				default:
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return int(accepted.Load()), int(full.Load()), nil
}
