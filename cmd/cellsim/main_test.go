package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/cellular-simulator/internal/config"
	"github.com/signalsfoundry/cellular-simulator/internal/sim"
)

func TestRunRendersTextReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-protocol", "2g", "-messages", "100", "-overhead", "10", "-log-level", "error"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"2G (TDMA) (tower 1)",
		"72 of 72",
		"0 kHz, 16 of 16 users",
		"5 of 5 (4 full)",
		"100 (voice 25, data 75)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRunJSONWithRosterAndCustomProtocol(t *testing.T) {
	dir := t.TempDir()
	roster := filepath.Join(dir, "devices.txt")
	if err := os.WriteFile(roster, []byte("1,V\n2,D\nbad\n3,d\n"), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	var stdout, stderr bytes.Buffer
	args := []string{
		"-json", "-log-level", "error",
		"-protocol", "custom", "-users-per-channel", "2", "-bandwidth", "100", "-spectrum", "200",
		"-roster", roster, "-messages", "8",
	}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, stderr.String())
	}

	var rep sim.Report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout.String())
	}
	if rep.Protocol.MaxUsers != 4 || rep.Attach.Attached != 3 {
		t.Fatalf("protocol=%+v attach=%+v", rep.Protocol, rep.Attach)
	}
	if len(rep.RosterSkipped) != 1 || rep.RosterSkipped[0].Line != 3 {
		t.Fatalf("roster skipped = %+v", rep.RosterSkipped)
	}
	if rep.Messages.Delivered != 8 {
		t.Fatalf("messages = %+v", rep.Messages)
	}
}

func TestParseConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellsim.yaml")
	body := "simulation:\n  protocol: 3g\n  messages: 40\ntraffic:\n  producers: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := parseConfig([]string{"-config", path, "-messages", "12"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Simulation.Protocol != "3g" || cfg.Simulation.Messages != 12 || cfg.Traffic.Producers != 2 {
		t.Fatalf("config = %+v %+v", cfg.Simulation, cfg.Traffic)
	}
}

func TestParseConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want error
	}{
		{"unknown protocol", []string{"-protocol", "6g"}, config.ErrInvalidConfig},
		{"custom without params", []string{"-protocol", "custom"}, config.ErrInvalidConfig},
		{"bad traffic", []string{"-traffic", "bursty"}, config.ErrInvalidConfig},
	}
	for _, tc := range cases {
		if _, _, err := parseConfig(tc.args, &bytes.Buffer{}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}

	if _, _, err := parseConfig([]string{"extra"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for positional arguments")
	}
	if _, _, err := parseConfig([]string{"-no-such-flag"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
