package repository

import (
	"context"
	"database/sql"
	"fmt"

	"habitheroes/internal/database"
	"habitheroes/internal/models"
)

// LedgerRepository handles the reward point transaction log
type LedgerRepository struct {
	db database.DBTX
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db database.DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *LedgerRepository) WithTx(tx *database.Tx) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// CreateTransaction appends a ledger entry and sets its ID
func (r *LedgerRepository) CreateTransaction(ctx context.Context, t *models.RewardTransaction) error {
	query := `
		INSERT INTO reward_transactions (child_id, amount, kind, description, reference_type, reference_id,
			requires_approval, approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		t.ChildID, t.Amount, t.Kind, t.Description, t.ReferenceType, nullableInt64(t.ReferenceID),
		t.RequiresApproval, t.Approved, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.ID = id
	return nil
}

// ListTransactionsByChild returns a child's most recent entries, newest first
func (r *LedgerRepository) ListTransactionsByChild(ctx context.Context, childID int64, limit int) ([]models.RewardTransaction, error) {
	query := `
		SELECT id, child_id, amount, kind, description, reference_type, reference_id, requires_approval, approved, created_at
		FROM reward_transactions
		WHERE child_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.RewardTransaction
	for rows.Next() {
		var t models.RewardTransaction
		var refID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ChildID, &t.Amount, &t.Kind, &t.Description, &t.ReferenceType, &refID,
			&t.RequiresApproval, &t.Approved, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.ReferenceID = int64Ptr(refID)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// SumApproved returns the sum of a child's approved ledger entries
func (r *LedgerRepository) SumApproved(ctx context.Context, childID int64) (int, error) {
	var sum int
	query := "SELECT COALESCE(SUM(amount), 0) FROM reward_transactions WHERE child_id = ? AND approved = ?"
	if err := r.db.QueryRowContext(ctx, query, childID, true).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}
