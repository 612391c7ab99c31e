package postgres

import (
	"context"
	"errors"
	"fmt"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const transferColumns = `id, token, sender_id, receiver_id, amount, annulled, created_at`

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	t := &domain.Transfer{}
	err := row.Scan(&t.ID, &t.Token, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Annulled, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts the transfer and sets its generated id.
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error {
	query := `INSERT INTO transfers (token, sender_id, receiver_id, amount, annulled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := tx.QueryRow(ctx, query,
		t.Token, t.SenderID, t.ReceiverID, t.Amount, t.Annulled, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r *TransferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`

	t, err := scanTransfer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer for update: %w", err)
	}
	return t, nil
}

func (r *TransferRepo) GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE token = $1`

	t, err := scanTransfer(tx.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer by token: %w", err)
	}
	return t, nil
}

func (r *TransferRepo) MarkAnnulled(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `UPDATE transfers SET annulled = TRUE WHERE id = $1 AND annulled = FALSE`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("annul transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer %d not found or already annulled", id)
	}
	return nil
}

// ListByAccount returns transfers sent or received by the account, newest first.
func (r *TransferRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers
		WHERE sender_id = $1 OR receiver_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}
