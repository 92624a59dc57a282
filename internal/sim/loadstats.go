package sim

import (
	"github.com/signalsfoundry/cellular-simulator/core"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ChannelStats summarises how devices are spread over a tower's channels.
type ChannelStats struct {
	Channels     int     `json:"channels"`
	UsedChannels int     `json:"used_channels"`
	FullChannels int     `json:"full_channels"`
	MeanUsers    float64 `json:"mean_users"`
	StdDevUsers  float64 `json:"stddev_users"`
	MaxUsers     float64 `json:"max_users"`
	// Utilization is attached devices over total channel capacity.
	Utilization float64 `json:"utilization"`
}

// SummarizeChannels computes ChannelStats from per-channel loads.
func SummarizeChannels(loads []core.ChannelLoad) ChannelStats {
	s := ChannelStats{Channels: len(loads)}
	if len(loads) == 0 {
		return s
	}

	users := make([]float64, len(loads))
	capacity := make([]float64, len(loads))
	for i, l := range loads {
		users[i] = float64(l.Users)
		capacity[i] = float64(l.Capacity)
		if l.Users > 0 {
			s.UsedChannels++
		}
		if l.Capacity > 0 && l.Users >= l.Capacity {
			s.FullChannels++
		}
	}

	s.MeanUsers, s.StdDevUsers = stat.PopMeanStdDev(users, nil)
	s.MaxUsers = floats.Max(users)
	if total := floats.Sum(capacity); total > 0 {
		s.Utilization = floats.Sum(users) / total
	}
	return s
}

// TrafficStats describes the timing of generated arrivals.
type TrafficStats struct {
	Arrivals           int     `json:"arrivals"`
	VirtualSeconds     float64 `json:"virtual_seconds"`
	MeanInterarrival   float64 `json:"mean_interarrival"`
	StdDevInterarrival float64 `json:"stddev_interarrival"`
}

// SummarizeArrivals computes interarrival statistics. Arrivals all at time
// zero, as the fixed pattern produces, yield only a count.
func SummarizeArrivals(arrivals []Arrival) TrafficStats {
	s := TrafficStats{Arrivals: len(arrivals)}
	if len(arrivals) < 2 {
		if len(arrivals) == 1 {
			s.VirtualSeconds = arrivals[0].At
		}
		return s
	}

	gaps := make([]float64, 0, len(arrivals))
	prev := 0.0
	for _, a := range arrivals {
		gaps = append(gaps, a.At-prev)
		prev = a.At
	}
	s.VirtualSeconds = prev
	if s.VirtualSeconds == 0 {
		return s
	}
	s.MeanInterarrival, s.StdDevInterarrival = stat.MeanStdDev(gaps, nil)
	return s
}
