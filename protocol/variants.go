package protocol

import "fmt"

// Channel plans of the built-in technologies. Bandwidth and spectrum are
// in kHz; overhead is a percentage of the message volume.
const (
	gsmUsersPerChannel = 16
	gsmBandwidthKHz    = 200
	gsmSpectrumKHz     = 1000
	gsmOverheadPercent = 10

	cdmaUsersPerChannel = 32
	cdmaBandwidthKHz    = 200
	cdmaSpectrumKHz     = 1000
	cdmaOverheadPercent = 8

	ofdmUsersPerSubband = 30
	ofdmAntennas        = 4
	ofdmBandwidthKHz    = 10
	ofdmSpectrumKHz     = 1000
	ofdmOverheadPercent = 5
	ofdmUsersPerCore    = 1000

	nrUsersPerMHz     = 30
	nrAntennas        = 16
	nrBandMHz         = 1800
	nrBandwidthKHz    = 1000
	nrSpectrumKHz     = 10000
	nrOverheadPercent = 3
	nrUsersPerCore    = 2000
)

// Plan is a fixed channel plan: a contiguous spectrum split into equal
// channels, optionally offset from 0 kHz by a base frequency.
type Plan struct {
	name            string
	usersPerChannel int
	bandwidthKHz    int
	spectrumKHz     int
	baseKHz         int
	overheadPercent int
}

var _ Protocol = (*Plan)(nil)

// New2G returns the TDMA plan: 16 users per 200 kHz channel over 1 MHz.
func New2G() *Plan {
	return &Plan{
		name:            "2G (TDMA)",
		usersPerChannel: gsmUsersPerChannel,
		bandwidthKHz:    gsmBandwidthKHz,
		spectrumKHz:     gsmSpectrumKHz,
		overheadPercent: gsmOverheadPercent,
	}
}

// New3G returns the CDMA plan: 32 users per 200 kHz channel over 1 MHz.
func New3G() *Plan {
	return &Plan{
		name:            "3G (CDMA)",
		usersPerChannel: cdmaUsersPerChannel,
		bandwidthKHz:    cdmaBandwidthKHz,
		spectrumKHz:     cdmaSpectrumKHz,
		overheadPercent: cdmaOverheadPercent,
	}
}

func (p *Plan) Name() string          { return p.name }
func (p *Plan) UsersPerChannel() int  { return p.usersPerChannel }
func (p *Plan) ChannelBandwidth() int { return p.bandwidthKHz }

// OverheadPercent is the fixed signalling share of the plan.
func (p *Plan) OverheadPercent() int { return p.overheadPercent }

func (p *Plan) ChannelCount() int {
	if p.bandwidthKHz <= 0 {
		return 0
	}
	return p.spectrumKHz / p.bandwidthKHz
}

func (p *Plan) FrequencyAt(index int) (int, error) {
	n := p.ChannelCount()
	if index < 0 || index >= n {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrChannelIndex, index, n)
	}
	return p.baseKHz + index*p.bandwidthKHz, nil
}

func (p *Plan) MaxUsers() int {
	return p.ChannelCount() * p.usersPerChannel
}

func (p *Plan) Overhead(totalMessages int) int {
	return overhead(totalMessages, p.overheadPercent)
}

// AntennaArray is a plan whose per-channel capacity is multiplied by an
// antenna count and which is served by a pool of cellular cores.
type AntennaArray struct {
	Plan
	antennas     int
	usersPerCore int
}

var (
	_ Protocol      = (*AntennaArray)(nil)
	_ CoreEstimator = (*AntennaArray)(nil)
)

// New4G returns the OFDM plan: 30 users per 10 kHz sub-band on each of 4
// antennas over 1 MHz.
func New4G() *AntennaArray {
	return &AntennaArray{
		Plan: Plan{
			name:            "4G (OFDM)",
			usersPerChannel: ofdmUsersPerSubband * ofdmAntennas,
			bandwidthKHz:    ofdmBandwidthKHz,
			spectrumKHz:     ofdmSpectrumKHz,
			overheadPercent: ofdmOverheadPercent,
		},
		antennas:     ofdmAntennas,
		usersPerCore: ofdmUsersPerCore,
	}
}

// New5G returns the massive-MIMO plan at 1800 MHz: 30 users per 1 MHz on
// each of 16 antennas over 10 MHz. Its frequencies start at the band edge.
func New5G() *AntennaArray {
	return &AntennaArray{
		Plan: Plan{
			name:            "5G (Massive MIMO)",
			usersPerChannel: nrUsersPerMHz * nrAntennas,
			bandwidthKHz:    nrBandwidthKHz,
			spectrumKHz:     nrSpectrumKHz,
			baseKHz:         nrBandMHz * 1000,
			overheadPercent: nrOverheadPercent,
		},
		antennas:     nrAntennas,
		usersPerCore: nrUsersPerCore,
	}
}

// Antennas is the number of antennas multiplying channel capacity.
func (a *AntennaArray) Antennas() int { return a.antennas }

// RequiredCores is ceil(MaxUsers / usersPerCore).
func (a *AntennaArray) RequiredCores() int {
	if a.usersPerCore <= 0 {
		return 0
	}
	return (a.MaxUsers() + a.usersPerCore - 1) / a.usersPerCore
}
