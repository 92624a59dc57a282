package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/cellular-simulator/protocol"
)

// Error taxonomy shared by towers and coordinators. Refined errors below
// wrap one of these so callers can match either level with errors.Is.
var (
	// ErrInvalidArgument covers nil, zero or negative values where a positive
	// value is required.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCapacityExceeded indicates a tower or queue is at its structural or
	// protocol limit.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrNoChannelAvailable indicates the first-fit scan found no channel with
	// spare capacity.
	ErrNoChannelAvailable = errors.New("no channel available")
	// ErrDuplicateTower indicates a tower id is already registered.
	ErrDuplicateTower = errors.New("tower already exists")
	// ErrDuplicateDevice indicates a device id is already attached.
	ErrDuplicateDevice = errors.New("device already attached")
	// ErrNotFound indicates a tower or device lookup miss.
	ErrNotFound = errors.New("not found")
)

var (
	// ErrInvalidDevice indicates a nil device, a bad device field, or a device
	// that has already been detached.
	ErrInvalidDevice = fmt.Errorf("%w: device", ErrInvalidArgument)
	// ErrDeviceAttached indicates a device id is already attached to the
	// tower; it matches both ErrInvalidDevice and ErrDuplicateDevice.
	ErrDeviceAttached = fmt.Errorf("%w: %w", ErrInvalidDevice, ErrDuplicateDevice)
	// ErrInvalidTower indicates a nil tower or a bad tower field.
	ErrInvalidTower = fmt.Errorf("%w: tower", ErrInvalidArgument)
	// ErrQueueFull indicates the coordinator queue reached its bound.
	ErrQueueFull = fmt.Errorf("%w: message queue full", ErrCapacityExceeded)
	// ErrTowerFull indicates a tower reached min(device limit, MaxUsers).
	ErrTowerFull = fmt.Errorf("%w: tower at capacity", ErrCapacityExceeded)
	// ErrTowerNotFound indicates no tower has the requested id.
	ErrTowerNotFound = fmt.Errorf("tower %w", ErrNotFound)
	// ErrDeviceNotFound indicates no attached device has the requested id.
	ErrDeviceNotFound = fmt.Errorf("device %w", ErrNotFound)
	// ErrInvalidProtocol re-exports the protocol package's validation error.
	ErrInvalidProtocol = protocol.ErrInvalidParameters
)
