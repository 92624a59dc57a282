package model

import (
	"fmt"
	"strings"
)

// ConnectionKind is how a device talks to its tower.
type ConnectionKind int

const (
	// ConnectionData is a packet-switched data session.
	ConnectionData ConnectionKind = iota
	// ConnectionVoice is a circuit-switched voice call.
	ConnectionVoice
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnectionVoice:
		return "VOICE"
	case ConnectionData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the defined kinds.
func (k ConnectionKind) Valid() bool {
	return k == ConnectionData || k == ConnectionVoice
}

// ParseConnectionKind maps a roster type marker to a kind: "V"/"v" (or any
// spelling of "voice") is voice, everything else is data.
func ParseConnectionKind(s string) ConnectionKind {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "v") || strings.EqualFold(s, "voice") {
		return ConnectionVoice
	}
	return ConnectionData
}

// DeviceSpec is a device to be created and attached: an identity and a
// connection kind, independent of where it was read from.
type DeviceSpec struct {
	ID   int            `json:"id" yaml:"id" toml:"id"`
	Kind ConnectionKind `json:"kind" yaml:"kind" toml:"kind"`
}

// MarshalText renders k as "VOICE" or "DATA".
func (k ConnectionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid connection kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText accepts "VOICE", "DATA" or their one-letter markers, in
// any case.
func (k *ConnectionKind) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "VOICE", "V":
		*k = ConnectionVoice
	case "DATA", "D":
		*k = ConnectionData
	default:
		return fmt.Errorf("unknown connection kind %q", text)
	}
	return nil
}
