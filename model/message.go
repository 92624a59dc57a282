package model

// Message is a queued inter-device message addressed to a tower. It lives
// only in a coordinator's queue and is discarded once processed.
type Message struct {
	ID           int64 `json:"id"`
	FromDeviceID int   `json:"from_device_id"`
	ToTowerID    int   `json:"to_tower_id"`
	IsVoice      bool  `json:"voice"`
	// Payload is already bounded by the coordinator's payload limit.
	Payload string `json:"payload"`
}

// Kind returns the connection kind implied by IsVoice.
func (m Message) Kind() ConnectionKind {
	if m.IsVoice {
		return ConnectionVoice
	}
	return ConnectionData
}
