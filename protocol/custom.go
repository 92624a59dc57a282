package protocol

import (
	"fmt"
	"sync/atomic"
)

// Custom is a caller-defined plan. Its overhead percentage starts at 0 and
// is set with SetOverheadPercent before the protocol is shared.
type Custom struct {
	Plan
	percent atomic.Int32
}

var _ Protocol = (*Custom)(nil)

// NewCustom validates the parameters and builds a custom plan starting at
// 0 kHz.
func NewCustom(usersPerChannel, channelBandwidth, totalSpectrum int) (*Custom, error) {
	switch {
	case usersPerChannel <= 0:
		return nil, fmt.Errorf("%w: users per channel must be positive, got %d", ErrInvalidParameters, usersPerChannel)
	case channelBandwidth <= 0:
		return nil, fmt.Errorf("%w: channel bandwidth must be positive, got %d", ErrInvalidParameters, channelBandwidth)
	case totalSpectrum <= 0:
		return nil, fmt.Errorf("%w: total spectrum must be positive, got %d", ErrInvalidParameters, totalSpectrum)
	case channelBandwidth > totalSpectrum:
		return nil, fmt.Errorf("%w: channel bandwidth %d kHz exceeds spectrum %d kHz", ErrInvalidParameters, channelBandwidth, totalSpectrum)
	}
	return &Custom{
		Plan: Plan{
			name:            "Custom Protocol",
			usersPerChannel: usersPerChannel,
			bandwidthKHz:    channelBandwidth,
			spectrumKHz:     totalSpectrum,
		},
	}, nil
}

// SetOverheadPercent stores p clamped to [0, 100] and returns the stored
// value.
func (c *Custom) SetOverheadPercent(p int) int {
	p = ClampPercent(p)
	c.percent.Store(int32(p))
	return p
}

// OverheadPercent reports the percentage currently in effect.
func (c *Custom) OverheadPercent() int { return int(c.percent.Load()) }

func (c *Custom) Overhead(totalMessages int) int {
	return overhead(totalMessages, c.OverheadPercent())
}
