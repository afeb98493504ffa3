package handler

import (
	"time"

	"arcana/internal/ledger/models"
)

// BalanceResponse is the envelope every balance mutation returns.
type BalanceResponse struct {
	Stars     int       `json:"stars"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newBalanceResponse(b *models.Balance) BalanceResponse {
	return BalanceResponse{Stars: b.CurrentStars, UpdatedAt: b.UpdatedAt}
}

// TransactionResponse is one log entry in the transaction listing.
type TransactionResponse struct {
	ID          string    `json:"id"`
	Amount      int       `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransactionListResponse is the transaction listing envelope.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

func newTransactionListResponse(txs []models.Transaction) TransactionListResponse {
	out := TransactionListResponse{Transactions: make([]TransactionResponse, 0, len(txs))}
	for _, tx := range txs {
		out.Transactions = append(out.Transactions, TransactionResponse{
			ID:          tx.ID.String(),
			Amount:      tx.Amount,
			Type:        string(tx.Type),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		})
	}
	return out
}
