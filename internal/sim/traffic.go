package sim

import (
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
)

// Payloads carried by generated messages.
const (
	VoicePayload = "Voice call"
	DataPayload  = "Data packet"
)

// Arrival is one message to be enqueued. At is the virtual arrival time in
// seconds; the fixed pattern leaves it at zero.
type Arrival struct {
	At      float64 `json:"at"`
	From    int     `json:"from"`
	Voice   bool    `json:"voice"`
	Payload string  `json:"payload"`
}

func payloadFor(voice bool) string {
	if voice {
		return VoicePayload
	}
	return DataPayload
}

// PatternTraffic is the fixed traffic mix: message i is a voice call when
// i%4 == 0 and is sent by senders[i % len(senders)].
func PatternTraffic(n int, senders []int) []Arrival {
	if n <= 0 || len(senders) == 0 {
		return nil
	}
	out := make([]Arrival, n)
	for i := range out {
		voice := i%4 == 0
		out[i] = Arrival{
			From:    senders[i%len(senders)],
			Voice:   voice,
			Payload: payloadFor(voice),
		}
	}
	return out
}

// PoissonSource produces arrivals with exponential interarrival times by
// running a discrete-event schedule in virtual time.
type PoissonSource struct {
	Rate       float64 // arrivals per virtual second
	VoiceRatio float64 // probability an arrival is a voice call
	Stream     string  // random stream name

	rng      *rngstream.RngStream
	senders  []int
	limit    int
	arrivals []Arrival
}

// poissonHorizon bounds a Poisson run in virtual seconds. evtm converts the
// limit to int64 ticks, so it must stay well inside that range.
const poissonHorizon = 1e9

// Generate returns n arrivals ordered by time.
func (p *PoissonSource) Generate(n int, senders []int) ([]Arrival, error) {
	if p.Rate <= 0 || math.IsNaN(p.Rate) || math.IsInf(p.Rate, 0) {
		return nil, fmt.Errorf("poisson rate must be a positive number, got %v", p.Rate)
	}
	if p.VoiceRatio < 0 || p.VoiceRatio > 1 {
		return nil, fmt.Errorf("voice ratio must be within [0,1], got %v", p.VoiceRatio)
	}
	if n <= 0 || len(senders) == 0 {
		return nil, nil
	}

	stream := p.Stream
	if stream == "" {
		stream = "cellsim"
	}
	p.rng = rngstream.New(stream)
	p.senders = senders
	p.limit = n
	p.arrivals = make([]Arrival, 0, n)

	evtMgr := evtm.New()
	evtMgr.Schedule(p, nil, poissonArrival, vrtime.SecondsToTime(p.interarrival()))
	evtMgr.Run(poissonHorizon)

	out := p.arrivals
	p.arrivals = nil
	if len(out) < n {
		return nil, fmt.Errorf("poisson source stopped at %d of %d arrivals before %.0f virtual seconds", len(out), n, poissonHorizon)
	}
	return out, nil
}

func (p *PoissonSource) interarrival() float64 {
	return -math.Log(1.0-p.rng.RandU01()) / p.Rate
}

// poissonArrival records one arrival and schedules the next until the
// source has produced its quota.
func poissonArrival(evtMgr *evtm.EventManager, context any, data any) any {
	p := context.(*PoissonSource)

	idx := int(p.rng.RandU01() * float64(len(p.senders)))
	if idx >= len(p.senders) {
		idx = len(p.senders) - 1
	}
	voice := p.rng.RandU01() < p.VoiceRatio
	p.arrivals = append(p.arrivals, Arrival{
		At:      evtMgr.CurrentSeconds(),
		From:    p.senders[idx],
		Voice:   voice,
		Payload: payloadFor(voice),
	})

	if len(p.arrivals) < p.limit {
		evtMgr.Schedule(p, nil, poissonArrival, vrtime.SecondsToTime(p.interarrival()))
	}
	return nil
}
