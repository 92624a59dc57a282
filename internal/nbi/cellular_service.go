// Package nbi exposes a coordinator over gRPC and HTTP.
package nbi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/cellular-simulator/core"
	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/model"
	"github.com/signalsfoundry/cellular-simulator/protocol"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"
)

// DrainSummary is the outcome of the most recent ProcessMessages pass,
// without per-message detail.
type DrainSummary struct {
	At               time.Time `json:"at"`
	Delivered        int       `json:"delivered"`
	Dropped          int       `json:"dropped"`
	OverheadFailures int       `json:"overhead_failures"`
	TotalProcessed   int64     `json:"total_processed"`
}

// TowerDetail is a tower snapshot with its protocol and channel loads.
type TowerDetail struct {
	core.TowerStatus
	Summary  protocol.Summary   `json:"summary"`
	Channels []core.ChannelLoad `json:"channels"`
	Devices  []core.DeviceInfo  `json:"devices"`
}

// Status is the GetStatus response body.
type Status struct {
	Coordinator core.CoordinatorStatus `json:"coordinator"`
	Towers      []core.TowerStatus     `json:"towers"`
	LastDrain   *DrainSummary          `json:"last_drain,omitempty"`
}

// CellularService implements CellularServiceServer on top of one
// coordinator.
//
// Request keys:
//
//	AddTower         tower_id, protocol, custom{users_per_channel, channel_bandwidth_khz,
//	                 total_spectrum_khz, overhead_percent}, device_limit
//	AttachDevice     tower_id, device_id, kind ("DATA", "VOICE", "V")
//	DetachDevice     tower_id, device_id
//	EnqueueMessage   from_device_id, to_tower_id, voice, payload
//	ProcessMessages  include_outcomes
type CellularService struct {
	coord        *core.Coordinator
	towerMetrics core.TowerMetrics
	deviceLimit  int
	log          logging.Logger

	mu        sync.Mutex
	lastDrain *DrainSummary
}

var _ CellularServiceServer = (*CellularService)(nil)

// ServiceOption customises a CellularService.
type ServiceOption func(*CellularService)

// WithTowerMetrics is handed to every tower created through AddTower.
func WithTowerMetrics(m core.TowerMetrics) ServiceOption {
	return func(s *CellularService) { s.towerMetrics = m }
}

// WithDefaultDeviceLimit applies to towers added without a device_limit.
func WithDefaultDeviceLimit(n int) ServiceOption {
	return func(s *CellularService) {
		if n > 0 {
			s.deviceLimit = n
		}
	}
}

// NewCellularService binds a service to coord.
func NewCellularService(coord *core.Coordinator, log logging.Logger, opts ...ServiceOption) *CellularService {
	s := &CellularService{
		coord:       coord,
		deviceLimit: core.DefaultMaxDevices,
		log:         logging.OrNoop(log),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Coordinator returns the coordinator the service drives.
func (s *CellularService) Coordinator() *core.Coordinator { return s.coord }

// NewTower builds a tower with the service's logger, metrics and default
// device limit.
func (s *CellularService) NewTower(id int, p protocol.Protocol, deviceLimit int) (*core.Tower, error) {
	if deviceLimit <= 0 {
		deviceLimit = s.deviceLimit
	}
	opts := []core.TowerOption{
		core.WithDeviceLimit(deviceLimit),
		core.WithTowerLogger(s.log),
	}
	if s.towerMetrics != nil {
		opts = append(opts, core.WithTowerMetrics(s.towerMetrics))
	}
	return core.NewTower(id, p, opts...)
}

// Drain runs one ProcessMessages pass and remembers its summary.
func (s *CellularService) Drain(ctx context.Context) core.ProcessReport {
	report := s.coord.ProcessMessages(ctx)
	s.mu.Lock()
	s.lastDrain = &DrainSummary{
		At:               time.Now().UTC(),
		Delivered:        report.Delivered,
		Dropped:          report.Dropped,
		OverheadFailures: report.OverheadFailures,
		TotalProcessed:   report.TotalProcessed,
	}
	s.mu.Unlock()
	return report
}

// Status snapshots the coordinator and all towers.
func (s *CellularService) Status() Status {
	towers := s.coord.Towers()
	out := Status{
		Coordinator: s.coord.Status(),
		Towers:      make([]core.TowerStatus, 0, len(towers)),
	}
	for _, t := range towers {
		out.Towers = append(out.Towers, t.Status())
	}
	s.mu.Lock()
	if s.lastDrain != nil {
		d := *s.lastDrain
		out.LastDrain = &d
	}
	s.mu.Unlock()
	return out
}

// TowerDetail snapshots one tower.
func (s *CellularService) TowerDetail(id int) (TowerDetail, error) {
	t, err := s.coord.Tower(id)
	if err != nil {
		return TowerDetail{}, err
	}
	return TowerDetail{
		TowerStatus: t.Status(),
		Summary:     protocol.Describe(t.Protocol()),
		Channels:    t.Channels(),
		Devices:     t.Devices(),
	}, nil
}

func (s *CellularService) GetStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp, err := toStruct(s.Status())
	return resp, ToStatusError(err)
}

func (s *CellularService) AddTower(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, reqLog := requestLogger(ctx, s.log)

	id, err := intField(req, "tower_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	kindName, err := optionalString(req, "protocol")
	if err != nil {
		return nil, ToStatusError(err)
	}
	kind, err := protocol.ParseKind(kindName)
	if err != nil {
		return nil, ToStatusError(err)
	}
	params, err := customParams(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	limit, _, err := optionalInt(req, "device_limit")
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := startSpan(ctx, "CellularService.AddTower",
		attribute.Int("cellsim.tower_id", id),
		attribute.String("cellsim.protocol", kind.String()))
	defer span.End()

	p, err := protocol.New(kind, params)
	if err != nil {
		return nil, ToStatusError(err)
	}
	tower, err := s.NewTower(id, p, limit)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.coord.AddTower(tower); err != nil {
		reqLog.Warn(ctx, "add tower rejected", logging.Int("tower_id", id), logging.Err(err))
		return nil, ToStatusError(err)
	}
	reqLog.Info(ctx, "tower added",
		logging.Int("tower_id", id),
		logging.String("protocol", p.Name()),
		logging.Int("device_limit", tower.DeviceLimit()),
	)

	detail, err := s.TowerDetail(id)
	if err != nil {
		return nil, ToStatusError(err)
	}
	detail.Channels = nil
	resp, err := toStruct(detail)
	return resp, ToStatusError(err)
}

func customParams(req *structpb.Struct) (protocol.CustomParams, error) {
	var params protocol.CustomParams
	custom, err := optionalStruct(req, "custom")
	if err != nil || custom == nil {
		return params, err
	}
	fields := []struct {
		key string
		dst *int
	}{
		{"users_per_channel", &params.UsersPerChannel},
		{"channel_bandwidth_khz", &params.ChannelBandwidth},
		{"total_spectrum_khz", &params.TotalSpectrum},
		{"overhead_percent", &params.OverheadPercent},
	}
	for _, f := range fields {
		n, _, err := optionalInt(custom, f.key)
		if err != nil {
			return params, fmt.Errorf("custom: %w", err)
		}
		*f.dst = n
	}
	return params, nil
}

func (s *CellularService) AttachDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, reqLog := requestLogger(ctx, s.log)

	towerID, err := intField(req, "tower_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	deviceID, err := intField(req, "device_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	kindName, err := optionalString(req, "kind")
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := startSpan(ctx, "CellularService.AttachDevice",
		attribute.Int("cellsim.tower_id", towerID),
		attribute.Int("cellsim.device_id", deviceID))
	defer span.End()

	tower, err := s.coord.Tower(towerID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	d, err := core.NewDevice(deviceID, model.ParseConnectionKind(kindName))
	if err != nil {
		return nil, ToStatusError(err)
	}
	a, err := tower.Attach(ctx, d)
	if err != nil {
		reqLog.Warn(ctx, "attach rejected",
			logging.Int("tower_id", towerID),
			logging.Int("device_id", deviceID),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}

	resp, err := toStruct(a)
	return resp, ToStatusError(err)
}

func (s *CellularService) DetachDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	towerID, err := intField(req, "tower_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	deviceID, err := intField(req, "device_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	tower, err := s.coord.Tower(towerID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := tower.Detach(ctx, deviceID); err != nil {
		return nil, ToStatusError(err)
	}
	return structpb.NewStruct(map[string]any{
		"tower_id":  towerID,
		"device_id": deviceID,
		"attached":  tower.AttachedCount(),
	})
}

func (s *CellularService) EnqueueMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, err := intField(req, "from_device_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	to, err := intField(req, "to_tower_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	voice, err := optionalBool(req, "voice")
	if err != nil {
		return nil, ToStatusError(err)
	}
	payload, err := optionalString(req, "payload")
	if err != nil {
		return nil, ToStatusError(err)
	}

	id, err := s.coord.GenerateMessage(ctx, from, to, voice, payload)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return structpb.NewStruct(map[string]any{
		"message_id": id,
		"pending":    s.coord.Pending(),
	})
}

func (s *CellularService) ProcessMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	withOutcomes, err := optionalBool(req, "include_outcomes")
	if err != nil {
		return nil, ToStatusError(err)
	}
	report := s.Drain(ctx)
	if !withOutcomes {
		report.Outcomes = nil
	}
	resp, err := toStruct(report)
	return resp, ToStatusError(err)
}
