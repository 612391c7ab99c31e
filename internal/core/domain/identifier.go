package domain

import "strconv"

// AccountIdentType is the closed set of ways a terminal can name an account.
// The primary key type is never stored in the identifier table; it is a direct id lookup.
type AccountIdentType string

const (
	AccountIdentPrimaryKey AccountIdentType = "PK"
	AccountIdentID         AccountIdentType = "ID"
	AccountIdentBarcode    AccountIdentType = "BARCODE"
	AccountIdentRFID       AccountIdentType = "RFID"
)

// Valid reports whether t is one of the known account identifier types.
func (t AccountIdentType) Valid() bool {
	switch t {
	case AccountIdentPrimaryKey, AccountIdentID, AccountIdentBarcode, AccountIdentRFID:
		return true
	}
	return false
}

// Stored reports whether identifiers of this type live in the identifier table.
func (t AccountIdentType) Stored() bool {
	return t.Valid() && t != AccountIdentPrimaryKey
}

// Trackable reports whether unresolved values of this type are worth recording
// for diagnosis (cards and badges scanned at a terminal).
func (t AccountIdentType) Trackable() bool {
	return t == AccountIdentBarcode || t == AccountIdentRFID
}

// ProductIdentType is the closed set of ways a terminal can name a product.
type ProductIdentType string

const (
	ProductIdentPrimaryKey ProductIdentType = "PK"
	ProductIdentID         ProductIdentType = "ID"
	ProductIdentBarcode    ProductIdentType = "BARCODE"
)

func (t ProductIdentType) Valid() bool {
	switch t {
	case ProductIdentPrimaryKey, ProductIdentID, ProductIdentBarcode:
		return true
	}
	return false
}

func (t ProductIdentType) Stored() bool {
	return t.Valid() && t != ProductIdentPrimaryKey
}

// AccountIdentifier is an external (type, value) reference to an account.
type AccountIdentifier struct {
	Type  AccountIdentType `json:"type"`
	Value string           `json:"value"`
}

// PrimaryKey returns the account id when the identifier is of the primary key type.
func (i AccountIdentifier) PrimaryKey() (int64, bool) {
	if i.Type != AccountIdentPrimaryKey {
		return 0, false
	}
	return parseID(i.Value)
}

// ProductIdentifier is an external (type, value) reference to a product.
type ProductIdentifier struct {
	Type  ProductIdentType `json:"type"`
	Value string           `json:"value"`
}

func (i ProductIdentifier) PrimaryKey() (int64, bool) {
	if i.Type != ProductIdentPrimaryKey {
		return 0, false
	}
	return parseID(i.Value)
}

func parseID(v string) (int64, bool) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
