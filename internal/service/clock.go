package service

import (
	"time"

	"kiosk-ledger/internal/core/ports"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() ports.Clock { return systemClock{} }
