// Package protocol describes the channel geometry and capacity math of the
// radio technologies a tower can run (2G, 3G, 4G, 5G and custom plans).
//
// A Protocol is immutable once built and is shared by reference between
// every tower that uses it. The only exception is Custom, whose overhead
// percentage is set by the caller once, before the protocol is handed out.
package protocol

import (
	"errors"
)

var (
	// ErrInvalidParameters indicates a protocol was built with a
	// non-positive bandwidth, spectrum or user count, or with a bandwidth
	// wider than the spectrum.
	ErrInvalidParameters = errors.New("invalid protocol parameters")
	// ErrChannelIndex indicates a channel index outside [0, ChannelCount).
	ErrChannelIndex = errors.New("channel index out of range")
	// ErrUnknownKind indicates an unrecognised protocol selector.
	ErrUnknownKind = errors.New("unknown protocol kind")
)

// Protocol is the capability contract every technology variant satisfies.
// Frequencies and bandwidths are expressed in kHz.
type Protocol interface {
	// Name is the human-readable technology name, e.g. "2G (TDMA)".
	Name() string
	// UsersPerChannel is the number of devices a single channel can carry.
	UsersPerChannel() int
	// ChannelBandwidth is the width of one channel in kHz.
	ChannelBandwidth() int
	// ChannelCount is the number of channels in the spectrum.
	ChannelCount() int
	// FrequencyAt maps a channel index in [0, ChannelCount) to its
	// frequency. Any other index yields ErrChannelIndex.
	FrequencyAt(index int) (int, error)
	// MaxUsers is ChannelCount * UsersPerChannel.
	MaxUsers() int
	// Overhead estimates how many of totalMessages are consumed by
	// signalling: floor(totalMessages * overheadPercent / 100), or 0 for
	// non-positive input.
	Overhead(totalMessages int) int
}

// CoreEstimator is implemented by antenna-array variants (4G, 5G) that can
// estimate how many cellular cores are needed to serve MaxUsers.
type CoreEstimator interface {
	RequiredCores() int
}

// Summary is a read-only description of a protocol for reporting.
type Summary struct {
	Name             string `json:"name"`
	UsersPerChannel  int    `json:"users_per_channel"`
	ChannelBandwidth int    `json:"channel_bandwidth_khz"`
	ChannelCount     int    `json:"channel_count"`
	MaxUsers         int    `json:"max_users"`
	FirstFrequency   int    `json:"first_frequency_khz"`
	// RequiredCores is zero for variants that do not implement CoreEstimator.
	RequiredCores int `json:"required_cores,omitempty"`
}

// Describe captures the reporting fields of p.
func Describe(p Protocol) Summary {
	if p == nil {
		return Summary{}
	}
	s := Summary{
		Name:             p.Name(),
		UsersPerChannel:  p.UsersPerChannel(),
		ChannelBandwidth: p.ChannelBandwidth(),
		ChannelCount:     p.ChannelCount(),
		MaxUsers:         p.MaxUsers(),
	}
	if f, err := p.FrequencyAt(0); err == nil {
		s.FirstFrequency = f
	}
	if ce, ok := p.(CoreEstimator); ok {
		s.RequiredCores = ce.RequiredCores()
	}
	return s
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// overhead is floor(total * percent / 100) computed in 64 bits so large
// message counts cannot overflow.
func overhead(total, percent int) int {
	if total <= 0 || percent <= 0 {
		return 0
	}
	return int(int64(total) * int64(percent) / 100)
}
