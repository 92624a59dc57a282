package model

import (
	"encoding/json"
	"testing"
)

func TestParseConnectionKind(t *testing.T) {
	cases := map[string]ConnectionKind{
		"V":      ConnectionVoice,
		"v":      ConnectionVoice,
		" v ":    ConnectionVoice,
		"Voice":  ConnectionVoice,
		"D":      ConnectionData,
		"x":      ConnectionData,
		"":       ConnectionData,
		"vortex": ConnectionData,
	}
	for in, want := range cases {
		if got := ParseConnectionKind(in); got != want {
			t.Errorf("ParseConnectionKind(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConnectionKindString(t *testing.T) {
	if ConnectionVoice.String() != "VOICE" || ConnectionData.String() != "DATA" {
		t.Fatalf("unexpected kind strings: %s %s", ConnectionVoice, ConnectionData)
	}
	if ConnectionKind(7).Valid() {
		t.Fatalf("ConnectionKind(7) should be invalid")
	}
}

func TestMessageKind(t *testing.T) {
	if (Message{IsVoice: true}).Kind() != ConnectionVoice {
		t.Fatalf("voice message reported data kind")
	}
	if (Message{}).Kind() != ConnectionData {
		t.Fatalf("data message reported voice kind")
	}
}

func TestConnectionKindJSON(t *testing.T) {
	raw, err := json.Marshal(DeviceSpec{ID: 5001, Kind: ConnectionVoice})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"id":5001,"kind":"VOICE"}` {
		t.Fatalf("Marshal = %s", raw)
	}

	var spec DeviceSpec
	if err := json.Unmarshal([]byte(`{"id":7,"kind":"d"}`), &spec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if spec.ID != 7 || spec.Kind != ConnectionData {
		t.Fatalf("Unmarshal = %+v", spec)
	}
	if err := json.Unmarshal([]byte(`{"id":7,"kind":"fax"}`), &spec); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := json.Marshal(ConnectionKind(9)); err == nil {
		t.Fatal("expected error marshalling an invalid kind")
	}
}
