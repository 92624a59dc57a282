package protocol

import (
	"fmt"
	"strings"
)

// Kind selects one of the built-in technologies or a custom plan.
type Kind int

const (
	KindUnknown Kind = iota
	Kind2G
	Kind3G
	Kind4G
	Kind5G
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case Kind2G:
		return "2G"
	case Kind3G:
		return "3G"
	case Kind4G:
		return "4G"
	case Kind5G:
		return "5G"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseKind accepts "2g".."5g", "custom" (case-insensitive) or the menu
// numbers "1".."5".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2g", "1", "tdma":
		return Kind2G, nil
	case "3g", "2", "cdma":
		return Kind3G, nil
	case "4g", "3", "ofdm", "lte":
		return Kind4G, nil
	case "5g", "4", "nr", "mimo":
		return Kind5G, nil
	case "custom", "5":
		return KindCustom, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// CustomParams carries the caller-supplied numbers for KindCustom.
type CustomParams struct {
	UsersPerChannel  int `toml:"users_per_channel" yaml:"users_per_channel"`
	ChannelBandwidth int `toml:"channel_bandwidth_khz" yaml:"channel_bandwidth_khz"`
	TotalSpectrum    int `toml:"total_spectrum_khz" yaml:"total_spectrum_khz"`
	OverheadPercent  int `toml:"overhead_percent" yaml:"overhead_percent"`
}

// New builds the protocol for kind. params is only read for KindCustom.
func New(kind Kind, params CustomParams) (Protocol, error) {
	switch kind {
	case Kind2G:
		return New2G(), nil
	case Kind3G:
		return New3G(), nil
	case Kind4G:
		return New4G(), nil
	case Kind5G:
		return New5G(), nil
	case KindCustom:
		c, err := NewCustom(params.UsersPerChannel, params.ChannelBandwidth, params.TotalSpectrum)
		if err != nil {
			return nil, err
		}
		c.SetOverheadPercent(params.OverheadPercent)
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
}
