package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/signalsfoundry/cellular-simulator/internal/sim"
	"golang.org/x/exp/slices"
)

func renderReport(w io.Writer, r *sim.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(label string, format string, args ...any) {
		fmt.Fprintf(tw, "  %s\t"+format+"\n", append([]any{label}, args...)...)
	}

	fmt.Fprintf(tw, "%s (tower %d)\n", r.Protocol.Name, r.TowerID)
	row("users per channel", "%d", r.Protocol.UsersPerChannel)
	row("channel bandwidth", "%d kHz", r.Protocol.ChannelBandwidth)
	row("channels", "%d", r.Protocol.ChannelCount)
	row("max users", "%d", r.Protocol.MaxUsers)
	if r.Protocol.RequiredCores > 0 {
		row("required cores", "%d", r.Protocol.RequiredCores)
	}
	row("overhead", "%d%%", r.OverheadPercent)
	row("max devices", "%d", r.MaxDevices)

	fmt.Fprintln(tw, "Devices")
	row("attached", "%d of %d", r.Attach.Attached, r.Attach.Attempted)
	if r.Attach.Failed > 0 {
		classes := make([]string, 0, len(r.Attach.Failures))
		for class := range r.Attach.Failures {
			classes = append(classes, class)
		}
		slices.Sort(classes)
		for _, class := range classes {
			row("failed: "+class, "%d", r.Attach.Failures[class])
		}
	}
	for _, issue := range r.RosterSkipped {
		row(fmt.Sprintf("skipped line %d", issue.Line), "%s (%q)", issue.Reason, issue.Text)
	}

	fmt.Fprintln(tw, "Channels")
	row("first channel", "%d kHz, %d of %d users", r.FirstChannel.Frequency, r.FirstChannel.Users, r.PerChannelCapacity)
	row("in use", "%d of %d (%d full)", r.Channels.UsedChannels, r.Channels.Channels, r.Channels.FullChannels)
	row("users per channel", "mean %.2f, stddev %.2f, max %.0f", r.Channels.MeanUsers, r.Channels.StdDevUsers, r.Channels.MaxUsers)
	row("utilization", "%.1f%%", r.Channels.Utilization*100)

	m := r.Messages
	fmt.Fprintln(tw, "Messages")
	row("requested", "%d", m.Requested)
	row("enqueued", "%d (%d rejected)", m.Enqueued, m.Rejected)
	row("delivered", "%d (voice %d, data %d)", m.Delivered, m.Voice, m.Data)
	row("dropped", "%d", m.Dropped)
	row("overhead messages", "%d", m.OverheadMessages)
	row("protocol overhead", "%d", m.ProtocolOverhead)
	if m.OverheadFailures > 0 {
		row("overhead failures", "%d", m.OverheadFailures)
	}
	row("devices utilized", "%d", m.DevicesUtilized)
	if r.Traffic.VirtualSeconds > 0 {
		row("virtual time", "%.3f s (mean gap %.4f s)", r.Traffic.VirtualSeconds, r.Traffic.MeanInterarrival)
	}

	return tw.Flush()
}
