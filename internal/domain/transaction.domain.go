package domain

import (
	"fmt"
	"time"

	xerrors "payauth-service/pkg/xerrors"
)

type TransactionType string

const (
	TransactionTypePayment     TransactionType = "payment"
	TransactionTypeTransfer    TransactionType = "transfer"
	TransactionTypeRecharge    TransactionType = "recharge"
	TransactionTypeBillPayment TransactionType = "bill_payment"
	TransactionTypeAddMoney    TransactionType = "add_money"
	TransactionTypeRefund      TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePayment, TransactionTypeTransfer, TransactionTypeRecharge,
		TransactionTypeBillPayment, TransactionTypeAddMoney, TransactionTypeRefund:
		return true
	}
	return false
}

// ExternallySettled reports whether a card/bank rail is invoked after the
// internal commit for this transaction type.
func (t TransactionType) ExternallySettled() bool {
	switch t {
	case TransactionTypePayment, TransactionTypeRecharge, TransactionTypeBillPayment:
		return true
	}
	return false
}

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"

	// History-only markers for the out-of-band settlement step. The record
	// status itself stays terminal once reached.
	StatusSettlementConfirmed TransactionStatus = "settlement_confirmed"
	StatusSettlementFailed    TransactionStatus = "settlement_failed"
)

func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StatusChange is one entry of the ordered status history on a record.
type StatusChange struct {
	Status    TransactionStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Reason    string            `json:"reason,omitempty"`
}

// TransactionRecord is the immutable audit entry written together with the
// balance mutation. Once status is terminal the record is never mutated;
// only status history may still grow (settlement outcome entries).
type TransactionRecord struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"account_id"`
	Type           TransactionType   `json:"type"`
	Amount         int64             `json:"amount"`
	Direction      Direction         `json:"direction"`
	Status         TransactionStatus `json:"status"`
	StatusHistory  []StatusChange    `json:"status_history"`
	AuthMethod     string            `json:"auth_method"`
	Description    string            `json:"description,omitempty"`
	BalanceBefore  int64             `json:"balance_before"`
	BalanceAfter   int64             `json:"balance_after"`
	IdempotencyKey string            `json:"-"`
	CounterpartyID *string           `json:"counterparty_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// CommitRequest is the monetary instruction handed to the ledger after
// authorization. IdempotencyKey is caller supplied (the authorization
// attempt id); replays return the original record.
type CommitRequest struct {
	AccountID      string
	Amount         int64
	Direction      Direction
	Type           TransactionType
	Description    string
	AuthMethod     string
	IdempotencyKey string
	CounterpartyID *string
}

func (r *CommitRequest) Validate() error {
	if r.AccountID == "" {
		return fmt.Errorf("%w: account id required", xerrors.ErrInvalidRequest)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", xerrors.ErrInvalidRequest)
	}
	if r.Direction != DirectionCredit && r.Direction != DirectionDebit {
		return fmt.Errorf("%w: direction must be credit or debit", xerrors.ErrInvalidRequest)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", xerrors.ErrInvalidRequest, r.Type)
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key required", xerrors.ErrInvalidRequest)
	}
	if r.AuthMethod == "" {
		// The only commit allowed without a verified method is an
		// account-to-self top-up.
		if r.Type != TransactionTypeAddMoney || r.Direction != DirectionCredit {
			return fmt.Errorf("%w: auth method required", xerrors.ErrInvalidRequest)
		}
	}
	if r.CounterpartyID != nil {
		if r.Type != TransactionTypeTransfer {
			return fmt.Errorf("%w: counterparty only valid for transfers", xerrors.ErrInvalidRequest)
		}
		if r.Direction != DirectionDebit {
			return fmt.Errorf("%w: transfers debit the sender", xerrors.ErrInvalidRequest)
		}
		if *r.CounterpartyID == r.AccountID {
			return fmt.Errorf("%w: cannot transfer to self", xerrors.ErrInvalidRequest)
		}
	}
	return nil
}

// SignedAmount is the balance delta this request applies to the account.
func (r *CommitRequest) SignedAmount() int64 {
	if r.Direction == DirectionDebit {
		return -r.Amount
	}
	return r.Amount
}
