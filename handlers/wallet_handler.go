package handlers

import (
	"net/http"

	"voltcare/domain"
)

// ListTransactions returns the caller's wallet ledger, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	txs, err := h.wallet.Transactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// CreateTransaction records a credit or debit on the caller's wallet. A debit
// past the balance yields 400 with an insufficient funds message.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var input struct {
		Type        domain.TransactionType `json:"type"`
		Amount      string                 `json:"amount"`
		Description string                 `json:"description"`
		ServiceID   string                 `json:"serviceId"`
	}
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, err)
		return
	}

	tx, err := h.wallet.RecordTransaction(r.Context(), userID, input.Type, input.Amount, input.Description, input.ServiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}
