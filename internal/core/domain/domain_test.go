package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"two digits", "6.00", "6", false},
		{"integer", "10", "10", false},
		{"one digit", "0.5", "0.5", false},
		{"negative", "-3.00", "-3", false},
		{"padded", " 2.50 ", "2.5", false},
		{"trailing zero beyond scale", "1.500", "1.5", false},
		{"three digits", "1.005", "", true},
		{"garbage", "ten", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedAmount))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "4.00", FormatAmount(decimal.NewFromInt(4)))
	assert.Equal(t, "-0.50", FormatAmount(decimal.RequireFromString("-0.5")))
}

func TestAccountIdentType(t *testing.T) {
	tests := []struct {
		name      string
		typ       AccountIdentType
		valid     bool
		stored    bool
		trackable bool
	}{
		{"primary key", AccountIdentPrimaryKey, true, false, false},
		{"numeric id", AccountIdentID, true, true, false},
		{"barcode", AccountIdentBarcode, true, true, true},
		{"rfid", AccountIdentRFID, true, true, true},
		{"unknown", AccountIdentType("EMAIL"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.typ.Valid())
			assert.Equal(t, tt.stored, tt.typ.Stored())
			assert.Equal(t, tt.trackable, tt.typ.Trackable())
		})
	}
}

func TestProductIdentType(t *testing.T) {
	assert.True(t, ProductIdentBarcode.Stored())
	assert.False(t, ProductIdentPrimaryKey.Stored())
	assert.False(t, ProductIdentType("RFID").Valid())
}

func TestIdentifier_PrimaryKey(t *testing.T) {
	id, ok := AccountIdentifier{Type: AccountIdentPrimaryKey, Value: "42"}.PrimaryKey()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = AccountIdentifier{Type: AccountIdentPrimaryKey, Value: "abc"}.PrimaryKey()
	assert.False(t, ok)

	_, ok = AccountIdentifier{Type: AccountIdentBarcode, Value: "42"}.PrimaryKey()
	assert.False(t, ok)

	id, ok = ProductIdentifier{Type: ProductIdentPrimaryKey, Value: "7"}.PrimaryKey()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestAccount_CanDebit(t *testing.T) {
	acc := &Account{Balance: decimal.RequireFromString("10.00")}

	assert.True(t, acc.CanDebit(decimal.RequireFromString("10.00"), decimal.Zero))
	assert.False(t, acc.CanDebit(decimal.RequireFromString("10.01"), decimal.Zero))
	assert.True(t, acc.CanDebit(decimal.RequireFromString("12.00"), decimal.RequireFromString("-2")))
}

func TestEntry_AnnullableAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := time.Hour

	tests := []struct {
		name     string
		now      time.Time
		annulled bool
		want     bool
	}{
		{"just created", created, false, true},
		{"inside window", created.Add(59 * time.Minute), false, true},
		{"one unit before boundary", created.Add(window - time.Nanosecond), false, true},
		{"at boundary", created.Add(window), false, false},
		{"one unit past boundary", created.Add(window + time.Nanosecond), false, false},
		{"already annulled", created, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{CreatedAt: created, Annulled: tt.annulled}
			assert.Equal(t, tt.want, e.AnnullableAt(tt.now, window))
		})
	}
}

func TestAnnul_Transitions(t *testing.T) {
	p := Purchase{AccountID: 1, Price: decimal.NewFromInt(6)}
	annulled, err := p.Annul()
	require.NoError(t, err)
	assert.True(t, annulled.Annulled)
	assert.False(t, p.Annulled, "original value must stay untouched")

	_, err = annulled.Annul()
	assert.ErrorIs(t, err, ErrAlreadyAnnulled)

	c, err := Charge{Amount: decimal.NewFromInt(5)}.Annul()
	require.NoError(t, err)
	_, err = c.Annul()
	assert.ErrorIs(t, err, ErrAlreadyAnnulled)

	tr, err := Transfer{Amount: decimal.NewFromInt(5)}.Annul()
	require.NoError(t, err)
	_, err = tr.Annul()
	assert.ErrorIs(t, err, ErrAlreadyAnnulled)
}

func TestLedgerEntry_Kinds(t *testing.T) {
	entries := []LedgerEntry{&Purchase{}, &Charge{}, &Transfer{}}
	kinds := []EntryKind{EntryPurchase, EntryCharge, EntryTransfer}
	for i, e := range entries {
		assert.Equal(t, kinds[i], e.Kind())
	}
}

func TestLedgerPolicy_AnnulWindow(t *testing.T) {
	p := DefaultLedgerPolicy()
	p.AnnulWindowCharge = 10 * time.Minute

	assert.Equal(t, time.Hour, p.AnnulWindow(EntryPurchase))
	assert.Equal(t, 10*time.Minute, p.AnnulWindow(EntryCharge))
	assert.Equal(t, time.Hour, p.AnnulWindow(EntryTransfer))
	assert.True(t, p.MinBalance.IsZero())
}

func TestBuildIdempotencyKey(t *testing.T) {
	assert.Equal(t, "PURCHASE:42", BuildIdempotencyKey(EntryPurchase, 42))
	assert.Equal(t, "TRANSFER:7", BuildIdempotencyKey(EntryTransfer, 7))
}

func TestTransferEvent_CopiesParties(t *testing.T) {
	sender, receiver := int64(1), int64(2)
	tr := Transfer{Entry: Entry{ID: 9}, SenderID: &sender, ReceiverID: &receiver, Amount: decimal.NewFromInt(5)}
	at := time.Now()

	ev := NewTransferEvent(ActionCreated, tr,
		BalanceSnapshot{AccountID: 1, Balance: decimal.NewFromInt(5)},
		BalanceSnapshot{AccountID: 2, Balance: decimal.NewFromInt(5)}, at)

	sender = 100
	assert.Equal(t, int64(1), *ev.SenderID)
	assert.Equal(t, EntryTransfer, ev.Kind)
	assert.Equal(t, int64(9), ev.EntryID)

	bal, ok := ev.BalanceOf(2)
	assert.True(t, ok)
	assert.True(t, bal.Equal(decimal.NewFromInt(5)))

	_, ok = ev.BalanceOf(3)
	assert.False(t, ok)
}

func TestPurchaseEvent(t *testing.T) {
	productID := int64(3)
	p := Purchase{Entry: Entry{ID: 1, Annulled: true}, AccountID: 5, ProductID: &productID, Price: decimal.NewFromInt(6)}

	ev := NewPurchaseEvent(ActionAnnulled, p, decimal.NewFromInt(10), time.Now())

	assert.Equal(t, ActionAnnulled, ev.Action)
	assert.True(t, ev.Annulled)
	assert.Equal(t, int64(5), *ev.AccountID)
	assert.Equal(t, int64(3), *ev.ProductID)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(6)))
}
