package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAnnulWindow applies to every entry kind unless configured otherwise.
const DefaultAnnulWindow = 60 * time.Minute

// LedgerPolicy is the rule set the ledger service is constructed with.
type LedgerPolicy struct {
	MinBalance          decimal.Decimal
	AnnulWindowPurchase time.Duration
	AnnulWindowCharge   time.Duration
	AnnulWindowTransfer time.Duration
}

// DefaultLedgerPolicy returns a zero balance floor and 60 minute windows.
func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		MinBalance:          decimal.Zero,
		AnnulWindowPurchase: DefaultAnnulWindow,
		AnnulWindowCharge:   DefaultAnnulWindow,
		AnnulWindowTransfer: DefaultAnnulWindow,
	}
}

// AnnulWindow returns the window configured for kind.
func (p LedgerPolicy) AnnulWindow(kind EntryKind) time.Duration {
	switch kind {
	case EntryPurchase:
		return p.AnnulWindowPurchase
	case EntryCharge:
		return p.AnnulWindowCharge
	case EntryTransfer:
		return p.AnnulWindowTransfer
	}
	return 0
}
