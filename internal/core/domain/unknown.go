package domain

import "time"

// UnknownIdentifier is a scanned account identifier that matched nothing.
type UnknownIdentifier struct {
	Type   AccountIdentType `json:"type"`
	Value  string           `json:"value"`
	SeenAt time.Time        `json:"seen_at"`
}
