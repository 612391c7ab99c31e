package domain

// PurchaseRecord is a purchase as listed for its account.
type PurchaseRecord struct {
	Purchase
	Annullable bool `json:"annullable"`
}

type ChargeRecord struct {
	Charge
	Annullable bool `json:"annullable"`
}

// TransferRecord is a transfer listed for one of its parties.
type TransferRecord struct {
	Transfer
	Incoming   bool `json:"incoming"`
	Annullable bool `json:"annullable"`
}
