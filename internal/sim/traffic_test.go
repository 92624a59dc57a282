package sim

import (
	"testing"

	"github.com/signalsfoundry/cellular-simulator/core"
)

func TestPatternTraffic(t *testing.T) {
	senders := []int{5001, 5002, 5003}
	got := PatternTraffic(6, senders)
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	wantFrom := []int{5001, 5002, 5003, 5001, 5002, 5003}
	for i, a := range got {
		if a.From != wantFrom[i] {
			t.Fatalf("arrival %d from %d, want %d", i, a.From, wantFrom[i])
		}
		wantVoice := i%4 == 0
		if a.Voice != wantVoice {
			t.Fatalf("arrival %d voice = %v", i, a.Voice)
		}
		if (a.Voice && a.Payload != VoicePayload) || (!a.Voice && a.Payload != DataPayload) {
			t.Fatalf("arrival %d payload = %q", i, a.Payload)
		}
	}
	if PatternTraffic(5, nil) != nil || PatternTraffic(0, senders) != nil {
		t.Fatalf("expected no arrivals without senders or count")
	}
}

func TestPoissonSource(t *testing.T) {
	senders := []int{1, 2, 3, 4}
	src := &PoissonSource{Rate: 10, VoiceRatio: 1, Stream: "poisson-test"}
	got, err := src.Generate(50, senders)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
	prev := 0.0
	for i, a := range got {
		if a.At < prev {
			t.Fatalf("arrival %d at %v before previous %v", i, a.At, prev)
		}
		prev = a.At
		if a.From < 1 || a.From > 4 {
			t.Fatalf("arrival %d from unknown sender %d", i, a.From)
		}
		if !a.Voice {
			t.Fatalf("voice ratio 1 produced a data arrival")
		}
	}
	if got[0].At <= 0 {
		t.Fatalf("first arrival at %v, want positive", got[0].At)
	}
}

func TestPoissonSourceRejectsBadParameters(t *testing.T) {
	for _, src := range []*PoissonSource{
		{Rate: 0, VoiceRatio: 0.5},
		{Rate: -1, VoiceRatio: 0.5},
		{Rate: 1, VoiceRatio: 1.5},
	} {
		if _, err := src.Generate(10, []int{1}); err == nil {
			t.Fatalf("expected error for %+v", src)
		}
	}
}

func TestSummarizeChannels(t *testing.T) {
	loads := []core.ChannelLoad{
		{Channel: core.Channel{Index: 0}, Users: 4, Capacity: 4},
		{Channel: core.Channel{Index: 1}, Users: 2, Capacity: 4},
		{Channel: core.Channel{Index: 2}, Users: 0, Capacity: 4},
		{Channel: core.Channel{Index: 3}, Users: 2, Capacity: 4},
	}
	s := SummarizeChannels(loads)
	if s.Channels != 4 || s.UsedChannels != 3 || s.FullChannels != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if s.MeanUsers != 2 || s.MaxUsers != 4 || s.Utilization != 0.5 {
		t.Fatalf("stats = %+v", s)
	}
	// Population stddev of {4,2,0,2} is sqrt(2).
	if s.StdDevUsers < 1.414 || s.StdDevUsers > 1.415 {
		t.Fatalf("stddev = %v", s.StdDevUsers)
	}
	if (SummarizeChannels(nil) != ChannelStats{}) {
		t.Fatalf("empty loads should give zero stats")
	}
}

func TestSummarizeArrivals(t *testing.T) {
	s := SummarizeArrivals([]Arrival{{At: 1}, {At: 2}, {At: 3}})
	if s.Arrivals != 3 || s.VirtualSeconds != 3 || s.MeanInterarrival != 1 || s.StdDevInterarrival != 0 {
		t.Fatalf("stats = %+v", s)
	}
	flat := SummarizeArrivals(PatternTraffic(4, []int{1}))
	if flat.Arrivals != 4 || flat.MeanInterarrival != 0 {
		t.Fatalf("pattern stats = %+v", flat)
	}
}

func TestPoissonSourceProducesEveryArrival(t *testing.T) {
	cases := []struct {
		name string
		rate float64
		n    int
	}{
		{"fast", 10, 20},
		{"slow", 0.01, 20},
		{"single", 1, 1},
	}
	for _, tc := range cases {
		src := &PoissonSource{Rate: tc.rate, VoiceRatio: 0.5, Stream: "every-arrival-" + tc.name}
		got, err := src.Generate(tc.n, []int{5001, 5002})
		if err != nil {
			t.Fatalf("%s: Generate: %v", tc.name, err)
		}
		if len(got) != tc.n {
			t.Fatalf("%s: got %d arrivals, want %d", tc.name, len(got), tc.n)
		}
		if last := got[len(got)-1].At; last <= 0 || last >= poissonHorizon {
			t.Fatalf("%s: last arrival at %v, want within (0, %v)", tc.name, last, poissonHorizon)
		}
	}
}
