package postgres

import (
	"context"
	"testing"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount() *domain.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Account{
		ID:        7,
		Name:      "alice",
		Balance:   decimal.RequireFromString("10.00"),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func accountRow(a *domain.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "balance", "enabled", "created_at", "updated_at"}).
		AddRow(a.ID, a.Name, a.Balance, a.Enabled, a.CreatedAt, a.UpdatedAt)
}

func TestAccountRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount()

	mock.ExpectQuery("SELECT .+ FROM accounts a WHERE a.id").
		WithArgs(a.ID).
		WillReturnRows(accountRow(a))

	result, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.Name, result.Name)
	assert.True(t, a.Balance.Equal(result.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM accounts a WHERE a.id").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), 404)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM accounts a WHERE a.id .+ FOR UPDATE").
		WithArgs(a.ID).
		WillReturnRows(accountRow(a))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByIDForUpdate(context.Background(), tx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByIDInTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM accounts a WHERE a.id = \$1$`).
		WithArgs(a.ID).
		WillReturnRows(accountRow(a))
	mock.ExpectQuery(`SELECT .+ FROM accounts a WHERE a.id = \$1$`).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByIDInTx(context.Background(), tx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)

	result, err = repo.GetByIDInTx(context.Background(), tx, 404)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByIdentifier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount()

	mock.ExpectBegin()
	mock.ExpectQuery("JOIN account_identifiers i ON i.account_id = a.id").
		WithArgs("RFID", "04:A2:19").
		WillReturnRows(accountRow(a))
	mock.ExpectQuery("JOIN account_identifiers").
		WithArgs("BARCODE", "missing").
		WillReturnError(pgx.ErrNoRows)

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByIdentifier(context.Background(), tx, domain.AccountIdentRFID, "04:A2:19")
	require.NoError(t, err)
	assert.Equal(t, a.ID, result.ID)

	result, err = repo.GetByIdentifier(context.Background(), tx, domain.AccountIdentBarcode, "missing")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	balance := decimal.RequireFromString("4.00")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET balance").
		WithArgs(balance, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE accounts SET balance").
		WithArgs(balance, int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.UpdateBalance(context.Background(), tx, 7, balance))

	err = repo.UpdateBalance(context.Background(), tx, 8, balance)
	assert.ErrorContains(t, err, "account not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
