package entities

import "time"

type TickType struct {
	ID   uint8  `json:"id"`
	Tick string `json:"tick"`
}

// Tick is one entry of the append-only tick log. IDs are assigned by the store in
// creation order.
type Tick struct {
	ID        uint64
	Type      uint8
	CreatedAt time.Time
}
