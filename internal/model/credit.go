package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreditTransactionType string

const (
	CreditTransactionUsage      CreditTransactionType = "usage"
	CreditTransactionTopUp      CreditTransactionType = "topup"
	CreditTransactionAdjustment CreditTransactionType = "adjustment"
	CreditTransactionRefund     CreditTransactionType = "refund"
)

// CreditTransaction is one row of the append-only credit ledger. Rows are
// never updated or deleted; balance_after must equal balance_before plus
// amount at the time of writing.
type CreditTransaction struct {
	ID            uuid.UUID             `json:"id" db:"id"`
	UserID        string                `json:"user_id" db:"user_id"`
	Type          CreditTransactionType `json:"type" db:"type"`
	Amount        decimal.Decimal       `json:"amount" db:"amount"` // signed; deductions are negative
	Description   string                `json:"description" db:"description"`
	Reference     string                `json:"reference" db:"reference"`
	BalanceBefore decimal.Decimal       `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time             `json:"created_at" db:"created_at"`
}
