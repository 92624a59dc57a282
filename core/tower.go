// core/tower.go
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/protocol"
	"golang.org/x/exp/slices"
)

// DefaultMaxDevices is the structural device limit of a tower, applied in
// addition to the protocol's MaxUsers.
const DefaultMaxDevices = 20000

// Attach/detach results reported to TowerMetrics.
const (
	ResultOK          = "ok"
	ResultInvalid     = "invalid"
	ResultDuplicate   = "duplicate"
	ResultCapacity    = "capacity"
	ResultNoChannel   = "no_channel"
	ResultNotAttached = "not_found"
)

// TowerMetrics receives attach/detach outcomes and device counts.
type TowerMetrics interface {
	ObserveAttach(towerID int, result string)
	ObserveDetach(towerID int, result string)
	SetAttachedDevices(towerID int, n int)
}

// Channel identifies one channel of a tower's protocol.
type Channel struct {
	Index     int `json:"index"`
	Frequency int `json:"frequency_khz"`
}

// Assignment is the result of a successful attach.
type Assignment struct {
	DeviceID int `json:"device_id"`
	Channel
}

// ChannelLoad is the occupancy of one channel.
type ChannelLoad struct {
	Channel
	Users    int `json:"users"`
	Capacity int `json:"capacity"`
}

// TowerStatus is a read-only snapshot of a tower.
type TowerStatus struct {
	ID          int    `json:"id"`
	Protocol    string `json:"protocol"`
	Attached    int    `json:"attached"`
	MaxUsers    int    `json:"max_users"`
	DeviceLimit int    `json:"device_limit"`
}

// Tower owns a set of attached devices and tracks how many of them sit on
// each frequency of its protocol. Channels are handed out first-fit by
// index, so early channels fill up before later ones are touched.
//
// Invariants, held whenever mu is released:
//   - every attached device's frequency has a non-zero occupancy entry;
//   - the occupancy of every frequency is at most UsersPerChannel;
//   - the occupancy entries sum to the number of attached devices;
//   - attached devices never exceed min(deviceLimit, MaxUsers);
//   - no device id is attached twice.
type Tower struct {
	mu sync.RWMutex

	id          int
	proto       protocol.Protocol
	deviceLimit int

	// devices is kept in attachment order.
	devices   []*Device
	byID      map[int]*Device
	occupancy map[int]int

	log     logging.Logger
	metrics TowerMetrics
}

// TowerOption customises Tower construction.
type TowerOption func(*Tower)

// WithDeviceLimit overrides DefaultMaxDevices. Non-positive values are
// ignored.
func WithDeviceLimit(n int) TowerOption {
	return func(t *Tower) {
		if n > 0 {
			t.deviceLimit = n
		}
	}
}

// WithTowerLogger attaches a structured logger.
func WithTowerLogger(l logging.Logger) TowerOption {
	return func(t *Tower) {
		if l != nil {
			t.log = l
		}
	}
}

// WithTowerMetrics attaches a metrics recorder.
func WithTowerMetrics(m TowerMetrics) TowerOption {
	return func(t *Tower) {
		t.metrics = m
	}
}

// NewTower builds an empty tower running p. The protocol is shared, not
// copied.
func NewTower(id int, p protocol.Protocol, opts ...TowerOption) (*Tower, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive, got %d", ErrInvalidTower, id)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: protocol is nil", ErrInvalidTower)
	}
	if p.ChannelCount() <= 0 || p.UsersPerChannel() <= 0 || p.ChannelBandwidth() <= 0 {
		return nil, fmt.Errorf("%w: %q has no usable channels", ErrInvalidProtocol, p.Name())
	}

	t := &Tower{
		id:          id,
		proto:       p,
		deviceLimit: DefaultMaxDevices,
		byID:        make(map[int]*Device),
		occupancy:   make(map[int]int),
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.log = t.log.With(logging.Int("tower_id", id), logging.String("protocol", p.Name()))
	return t, nil
}

func (t *Tower) ID() int                     { return t.id }
func (t *Tower) Protocol() protocol.Protocol { return t.proto }
func (t *Tower) DeviceLimit() int            { return t.deviceLimit }

// Capacity is min(device limit, protocol MaxUsers).
func (t *Tower) Capacity() int {
	return min(t.deviceLimit, t.proto.MaxUsers())
}

// Attach validates d, picks the first channel with room and commits the
// assignment. On any failure neither d nor the tower is modified.
func (t *Tower) Attach(ctx context.Context, d *Device) (Assignment, error) {
	if d == nil {
		t.observeAttach(ResultInvalid)
		return Assignment{}, fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}

	t.mu.Lock()
	a, result, err := t.attachLocked(d)
	count := len(t.devices)
	t.mu.Unlock()

	t.observeAttach(result)
	if err != nil {
		t.log.Debug(ctx, "device attach rejected",
			logging.Int("device_id", d.ID()),
			logging.String("result", result),
			logging.Err(err),
		)
		return Assignment{}, err
	}

	if t.metrics != nil {
		t.metrics.SetAttachedDevices(t.id, count)
	}
	t.log.Debug(ctx, "device attached",
		logging.Int("device_id", a.DeviceID),
		logging.Int("channel", a.Index),
		logging.Int("frequency_khz", a.Frequency),
	)
	return a, nil
}

func (t *Tower) attachLocked(d *Device) (Assignment, string, error) {
	switch d.State() {
	case DeviceDetached:
		return Assignment{}, ResultInvalid, fmt.Errorf("%w: device %d was detached and must be reissued", ErrInvalidDevice, d.ID())
	case DeviceAttached:
		if t.byID[d.ID()] == d {
			return Assignment{}, ResultDuplicate, fmt.Errorf("%w: %d", ErrDeviceAttached, d.ID())
		}
		return Assignment{}, ResultInvalid, fmt.Errorf("%w: device %d is attached to another tower", ErrInvalidDevice, d.ID())
	}
	if _, dup := t.byID[d.ID()]; dup {
		return Assignment{}, ResultDuplicate, fmt.Errorf("%w: %d", ErrDeviceAttached, d.ID())
	}

	if limit := t.Capacity(); len(t.devices) >= limit {
		return Assignment{}, ResultCapacity, fmt.Errorf("%w: %d of %d devices attached", ErrTowerFull, len(t.devices), limit)
	}

	ch, err := t.firstFitLocked()
	if err != nil {
		return Assignment{}, ResultNoChannel, err
	}

	t.occupancy[ch.Frequency]++
	t.devices = append(t.devices, d)
	t.byID[d.ID()] = d
	d.attach(ch.Frequency)

	return Assignment{DeviceID: d.ID(), Channel: ch}, ResultOK, nil
}

// FirstFit reports the channel the next attach would use without changing
// any state.
func (t *Tower) FirstFit() (Channel, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.firstFitLocked()
}

// firstFitLocked scans channels in index order and returns the first whose
// occupancy is below UsersPerChannel. Caller must hold t.mu.
func (t *Tower) firstFitLocked() (Channel, error) {
	perChannel := t.proto.UsersPerChannel()
	n := t.proto.ChannelCount()
	for i := 0; i < n; i++ {
		freq, err := t.proto.FrequencyAt(i)
		if err != nil {
			continue
		}
		if t.occupancy[freq] < perChannel {
			return Channel{Index: i, Frequency: freq}, nil
		}
	}
	return Channel{}, fmt.Errorf("%w: all %d channels of tower %d are full", ErrNoChannelAvailable, n, t.id)
}

// Detach removes the device with the given id, releasing its channel. A
// miss returns ErrDeviceNotFound and changes nothing.
func (t *Tower) Detach(ctx context.Context, deviceID int) error {
	t.mu.Lock()
	d, ok := t.byID[deviceID]
	if !ok {
		t.mu.Unlock()
		t.observeDetach(ResultNotAttached)
		t.log.Debug(ctx, "detach miss", logging.Int("device_id", deviceID))
		return fmt.Errorf("%w: %d on tower %d", ErrDeviceNotFound, deviceID, t.id)
	}

	freq, _ := d.Frequency()
	if n := t.occupancy[freq] - 1; n > 0 {
		t.occupancy[freq] = n
	} else {
		delete(t.occupancy, freq)
	}
	if i := slices.Index(t.devices, d); i >= 0 {
		t.devices = slices.Delete(t.devices, i, i+1)
	}
	delete(t.byID, deviceID)
	d.detach()
	count := len(t.devices)
	t.mu.Unlock()

	t.observeDetach(ResultOK)
	if t.metrics != nil {
		t.metrics.SetAttachedDevices(t.id, count)
	}
	t.log.Debug(ctx, "device detached", logging.Int("device_id", deviceID), logging.Int("frequency_khz", freq))
	return nil
}

// Occupancy returns the number of devices on freq, 0 if it was never used.
func (t *Tower) Occupancy(freq int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.occupancy[freq]
}

// AttachedCount returns the number of attached devices.
func (t *Tower) AttachedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

// Status returns a snapshot of the tower.
func (t *Tower) Status() TowerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TowerStatus{
		ID:          t.id,
		Protocol:    t.proto.Name(),
		Attached:    len(t.devices),
		MaxUsers:    t.proto.MaxUsers(),
		DeviceLimit: t.deviceLimit,
	}
}

// Channels returns the load of every channel in index order.
func (t *Tower) Channels() []ChannelLoad {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.proto.ChannelCount()
	out := make([]ChannelLoad, 0, n)
	for i := 0; i < n; i++ {
		freq, err := t.proto.FrequencyAt(i)
		if err != nil {
			continue
		}
		out = append(out, ChannelLoad{
			Channel:  Channel{Index: i, Frequency: freq},
			Users:    t.occupancy[freq],
			Capacity: t.proto.UsersPerChannel(),
		})
	}
	return out
}

// Devices returns snapshots of the attached devices in attachment order.
func (t *Tower) Devices() []DeviceInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]DeviceInfo, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d.info())
	}
	return out
}

// Device looks up an attached device by id.
func (t *Tower) Device(id int) (DeviceInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.byID[id]
	if !ok {
		return DeviceInfo{}, fmt.Errorf("%w: %d on tower %d", ErrDeviceNotFound, id, t.id)
	}
	return d.info(), nil
}

func (t *Tower) observeAttach(result string) {
	if t.metrics != nil {
		t.metrics.ObserveAttach(t.id, result)
	}
}

func (t *Tower) observeDetach(result string) {
	if t.metrics != nil {
		t.metrics.ObserveDetach(t.id, result)
	}
}
