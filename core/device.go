package core

import (
	"fmt"

	"github.com/signalsfoundry/cellular-simulator/model"
)

// DeviceState is the attachment lifecycle of a device.
type DeviceState int

const (
	DeviceUnattached DeviceState = iota
	DeviceAttached
	DeviceDetached
)

func (s DeviceState) String() string {
	switch s {
	case DeviceUnattached:
		return "unattached"
	case DeviceAttached:
		return "attached"
	case DeviceDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Device is a user device as seen by a tower. Its frequency and connection
// state are only changed by the tower it attaches to; once detached it never
// re-attaches, and a reconnecting handset is reissued as a new Device.
type Device struct {
	id        int
	kind      model.ConnectionKind
	frequency int
	// assigned distinguishes "no frequency" from the valid 0 kHz channel.
	assigned bool
	state    DeviceState
}

// NewDevice validates id and kind and returns an unattached device.
func NewDevice(id int, kind model.ConnectionKind) (*Device, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive, got %d", ErrInvalidDevice, id)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown connection kind %d", ErrInvalidDevice, int(kind))
	}
	return &Device{id: id, kind: kind}, nil
}

// NewDeviceFromSpec is NewDevice for a roster entry.
func NewDeviceFromSpec(spec model.DeviceSpec) (*Device, error) {
	return NewDevice(spec.ID, spec.Kind)
}

func (d *Device) ID() int                    { return d.id }
func (d *Device) Kind() model.ConnectionKind { return d.kind }
func (d *Device) State() DeviceState         { return d.state }

// Connected reports whether the device is currently attached.
func (d *Device) Connected() bool { return d.state == DeviceAttached }

// Frequency returns the assigned frequency in kHz and whether one is
// assigned.
func (d *Device) Frequency() (int, bool) { return d.frequency, d.assigned }

// SetKind changes the connection kind; it is validated like NewDevice.
func (d *Device) SetKind(kind model.ConnectionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown connection kind %d", ErrInvalidDevice, int(kind))
	}
	d.kind = kind
	return nil
}

// DeviceInfo is a read-only snapshot of a device.
type DeviceInfo struct {
	ID        int                  `json:"id"`
	Kind      model.ConnectionKind `json:"kind"`
	Frequency int                  `json:"frequency_khz"`
	Connected bool                 `json:"connected"`
}

func (d *Device) info() DeviceInfo {
	return DeviceInfo{
		ID:        d.id,
		Kind:      d.kind,
		Frequency: d.frequency,
		Connected: d.Connected(),
	}
}

// attach is called by Tower once a channel has been committed.
func (d *Device) attach(freq int) {
	d.frequency = freq
	d.assigned = true
	d.state = DeviceAttached
}

// detach is called by Tower on removal. The frequency is kept for
// post-mortem reporting but no longer counts as assigned.
func (d *Device) detach() {
	d.assigned = false
	d.state = DeviceDetached
}
