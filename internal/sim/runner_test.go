package sim

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/cellular-simulator/core"
	"github.com/signalsfoundry/cellular-simulator/internal/config"
	"github.com/signalsfoundry/cellular-simulator/internal/observability"
	"github.com/signalsfoundry/cellular-simulator/model"
)

func TestMaxDevices(t *testing.T) {
	cases := []struct {
		capacity, percent, limit, want int
	}{
		{80, 0, 20000, 80},
		{80, 10, 20000, 72},
		{80, 100, 20000, 1},
		{80, 150, 20000, 1},
		{80, -5, 20000, 80},
		{12000, 0, 100, 100},
		{0, 0, 100, 0},
	}
	for _, tc := range cases {
		if got := MaxDevices(tc.capacity, tc.percent, tc.limit); got != tc.want {
			t.Fatalf("MaxDevices(%d, %d, %d) = %d, want %d", tc.capacity, tc.percent, tc.limit, got, tc.want)
		}
	}
}

func TestRun2GPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "2g"
	cfg.Simulation.OverheadPercent = 10
	cfg.Simulation.Messages = 100

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.TowerID != 1 || rep.Protocol.MaxUsers != 80 {
		t.Fatalf("tower=%d protocol=%+v", rep.TowerID, rep.Protocol)
	}
	if rep.MaxDevices != 72 || rep.Attach.Attached != 72 || rep.Attach.Failed != 0 {
		t.Fatalf("max=%d attach=%+v", rep.MaxDevices, rep.Attach)
	}
	// 72 devices over 16-user channels: four full channels and 8 on the fifth.
	if rep.FirstChannel.Users != 16 || rep.FirstChannel.Frequency != 0 {
		t.Fatalf("first channel = %+v", rep.FirstChannel)
	}
	if rep.Channels.FullChannels != 4 || rep.Channels.UsedChannels != 5 {
		t.Fatalf("channel stats = %+v", rep.Channels)
	}
	m := rep.Messages
	if m.Generated != 100 || m.Enqueued != 100 || m.Delivered != 100 || m.Dropped != 0 {
		t.Fatalf("messages = %+v", m)
	}
	if m.Voice != 25 || m.Data != 75 {
		t.Fatalf("voice/data = %d/%d, want 25/75", m.Voice, m.Data)
	}
	if m.OverheadMessages != 10 {
		t.Fatalf("overhead messages = %d, want 10", m.OverheadMessages)
	}
	// 2G estimates floor(1 * 10 / 100) = 0 per message.
	if m.ProtocolOverhead != 0 || m.OverheadFailures != 0 {
		t.Fatalf("protocol overhead = %d failures = %d", m.ProtocolOverhead, m.OverheadFailures)
	}
}

func TestRunCapsMessagesAtQueueLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "3g"
	cfg.Simulation.Messages = 50
	cfg.Limits.MaxMessages = 20
	cfg.Traffic.Producers = 4

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.TowerID != 2 {
		t.Fatalf("tower id = %d, want 2", rep.TowerID)
	}
	if rep.Messages.Requested != 50 || rep.Messages.Generated != 20 || rep.Messages.Delivered != 20 {
		t.Fatalf("messages = %+v", rep.Messages)
	}
}

func TestRun5GFirstChannelIsOffsetByBand(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "5g"
	cfg.Simulation.Messages = 10
	cfg.Limits.MaxDevicesPerTower = 10

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.FirstChannel.Frequency != 1800000 {
		t.Fatalf("first channel frequency = %d, want 1800000", rep.FirstChannel.Frequency)
	}
	if rep.MaxDevices != 10 || rep.Protocol.RequiredCores != 3 {
		t.Fatalf("max devices = %d, cores = %d", rep.MaxDevices, rep.Protocol.RequiredCores)
	}
}

func TestRunCustomWithRosterAndMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "custom"
	cfg.Simulation.Custom.UsersPerChannel = 2
	cfg.Simulation.Custom.ChannelBandwidth = 100
	cfg.Simulation.Custom.TotalSpectrum = 200
	cfg.Simulation.OverheadPercent = 50
	cfg.Simulation.Messages = 8

	roster, err := core.LoadDeviceRoster(strings.NewReader("1,V\n2,D\nbad\n3,D\n"))
	if err != nil {
		t.Fatalf("LoadDeviceRoster: %v", err)
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	rep, err := Run(context.Background(), cfg, WithRoster(roster), WithMetrics(collector))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Capacity 4 minus 50% leaves room for 2 of the 3 roster devices.
	if rep.TowerID != 5 || rep.MaxDevices != 2 || rep.Attach.Attached != 2 {
		t.Fatalf("tower=%d max=%d attach=%+v", rep.TowerID, rep.MaxDevices, rep.Attach)
	}
	if len(rep.RosterSkipped) != 1 {
		t.Fatalf("roster skipped = %+v", rep.RosterSkipped)
	}
	// The custom protocol carries the run's overhead percent: floor(1*50/100) = 0.
	if rep.Messages.Delivered != 8 {
		t.Fatalf("messages = %+v", rep.Messages)
	}
	if got := testutil.ToFloat64(collector.MessagesDelivered); got != 8 {
		t.Fatalf("delivered metric = %v, want 8", got)
	}
	if got := testutil.ToFloat64(collector.DeviceAttach.WithLabelValues(core.ResultOK)); got != 2 {
		t.Fatalf("attach ok metric = %v, want 2", got)
	}
}

func TestRunPoisson(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "4g"
	cfg.Simulation.Messages = 200
	cfg.Limits.MaxDevicesPerTower = 50
	cfg.Traffic.Model = config.TrafficPoisson
	cfg.Traffic.RatePerSecond = 20
	cfg.Traffic.VoiceRatio = 0.5
	cfg.Traffic.Producers = 3

	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Messages.Delivered != 200 || rep.Messages.Voice+rep.Messages.Data != 200 {
		t.Fatalf("messages = %+v", rep.Messages)
	}
	if rep.Traffic.Arrivals != 200 || rep.Traffic.VirtualSeconds <= 0 || rep.Traffic.MeanInterarrival <= 0 {
		t.Fatalf("traffic = %+v", rep.Traffic)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "9g"
	if _, err := Run(context.Background(), cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("Run error = %v, want ErrInvalidConfig", err)
	}
}

func TestRunReportsDuplicateRosterIDsAsFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Protocol = "2g"
	cfg.Simulation.Messages = 0

	roster := &core.Roster{Devices: []model.DeviceSpec{
		{ID: 10, Kind: model.ConnectionData},
		{ID: 10, Kind: model.ConnectionVoice},
		{ID: -1, Kind: model.ConnectionData},
	}}
	rep, err := Run(context.Background(), cfg, WithRoster(roster))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Attach.Attached != 1 || rep.Attach.Failures[core.ResultDuplicate] != 1 || rep.Attach.Failures[core.ResultInvalid] != 1 {
		t.Fatalf("attach = %+v", rep.Attach)
	}
	if rep.Messages.Generated != 0 || rep.Messages.Delivered != 0 {
		t.Fatalf("messages = %+v", rep.Messages)
	}
}
