package entities

// Commit describes the state change applied together with a sequence advance.
type Commit struct {
	Sequence uint64 // value after the advance
	Tick     *Tick  // set for TriggerTick mutations only
}

// TickEvent is published for every accepted tick.
type TickEvent struct {
	ID        uint64 `json:"id"`
	Type      uint8  `json:"type"`
	Label     string `json:"label"`
	Sequence  uint64 `json:"sequence"`
	CreatedAt int64  `json:"createdAt"` // unix millis
}

// TickHistoryEntry is the JSON form of a tick served to full clients.
type TickHistoryEntry struct {
	ID   uint64 `json:"id"`
	Tick uint8  `json:"tick"`
	Time string `json:"time"`
}

const TickTimeLayout = "2006-01-02 15:04:05"
