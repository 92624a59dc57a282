package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/signalsfoundry/cellular-simulator/model"
)

// RosterIssue records a roster line that was not turned into a device.
type RosterIssue struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Roster is a parsed device list.
type Roster struct {
	Devices []model.DeviceSpec `json:"devices"`
	Skipped []RosterIssue      `json:"skipped,omitempty"`
}

// LoadDeviceRoster parses "id,K" rows where K starting with V or v marks a
// voice device and anything else a data device. Blank lines and lines
// starting with '#' are ignored. Malformed rows, non-positive ids and
// repeated ids are skipped and reported; only read errors fail the load.
func LoadDeviceRoster(r io.Reader) (*Roster, error) {
	roster := &Roster{}
	seen := make(map[int]struct{})

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		skip := func(reason string) {
			roster.Skipped = append(roster.Skipped, RosterIssue{Line: lineNo, Text: raw, Reason: reason})
		}

		idText, kindText, ok := strings.Cut(line, ",")
		if !ok {
			skip("missing ',' separator")
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(idText))
		if err != nil {
			skip(fmt.Sprintf("invalid device id %q", strings.TrimSpace(idText)))
			continue
		}
		if id <= 0 {
			skip(fmt.Sprintf("device id must be positive, got %d", id))
			continue
		}
		if _, dup := seen[id]; dup {
			skip(fmt.Sprintf("duplicate device id %d", id))
			continue
		}
		seen[id] = struct{}{}

		kind := model.ConnectionData
		if k := strings.TrimSpace(kindText); k != "" && (k[0] == 'V' || k[0] == 'v') {
			kind = model.ConnectionVoice
		}
		roster.Devices = append(roster.Devices, model.DeviceSpec{ID: id, Kind: kind})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read device roster: %w", err)
	}
	return roster, nil
}

// LoadDeviceRosterFile opens path and parses it with LoadDeviceRoster.
func LoadDeviceRosterFile(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device roster: %w", err)
	}
	defer f.Close()
	return LoadDeviceRoster(f)
}
