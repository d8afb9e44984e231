package server

import (
	"net/http"

	"trackmarket/core/market"
	"trackmarket/model"
)

// WithdrawRequest is the body of POST /api/withdraw. Amounts are whole rubles.
type WithdrawRequest struct {
	Amount  int64  `json:"amount"`
	Method  string `json:"method"`
	Bank    string `json:"bank"`
	Account string `json:"account"`
}

// BalanceHandler GET /api/balance
func (h *APIHandler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	balance, err := h.market.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, "[Balance]", err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// WithdrawHandler POST /api/withdraw
func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if !decodeJSON(w, r, "[Withdraw]", &req) {
		return
	}

	receipt, err := h.market.Withdraw(r.Context(), userID, market.WithdrawRequest{
		Amount:  req.Amount,
		Method:  req.Method,
		Bank:    req.Bank,
		Account: req.Account,
	})
	if err != nil {
		writeError(w, "[Withdraw]", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// TransactionsHandler GET /api/transactions?type=sale|withdrawal
func (h *APIHandler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUserID(w, r)
	if !ok {
		return
	}
	history, err := h.market.History(r.Context(), userID, model.TransactionType(r.URL.Query().Get("type")))
	if err != nil {
		writeError(w, "[Transactions]", err)
		return
	}
	if history.Transactions == nil {
		history.Transactions = []*model.Transaction{}
	}
	writeJSON(w, http.StatusOK, history)
}
