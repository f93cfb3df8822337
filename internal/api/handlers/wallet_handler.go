package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"futures/internal/service"
)

// WalletHandler отвечает за операции с кошельком
//
// Endpoints:
// - GET /api/v1/wallet/{account_id} - баланс аккаунта в USDT
// - POST /api/v1/wallet/{account_id}/deposit - пополнение кошелька
type WalletHandler struct {
	positionService service.PositionServiceInterface
}

// NewWalletHandler создает новый WalletHandler с внедрением зависимости
func NewWalletHandler(positionService service.PositionServiceInterface) *WalletHandler {
	return &WalletHandler{
		positionService: positionService,
	}
}

// GetBalance возвращает баланс аккаунта
//
// GET /api/v1/wallet/{account_id}
//
// HTTP коды:
// - 200 OK: баланс найден
// - 404 Not Found: кошелёк не существует
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account_id"]

	balance, err := h.positionService.GetBalance(accountID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}

// DepositRequest - запрос на пополнение кошелька
type DepositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit зачисляет средства на кошелёк аккаунта
//
// POST /api/v1/wallet/{account_id}/deposit
//
// Тело запроса: {"amount": 1000}
//
// HTTP коды:
// - 200 OK: средства зачислены, возвращается новый баланс
// - 400 Bad Request: неположительная сумма
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account_id"]

	var req DepositRequest
	if err := apiJSON.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "BAD_JSON", "Invalid request body: "+err.Error())
		return
	}

	if err := h.positionService.Deposit(accountID, req.Amount); err != nil {
		respondWithServiceError(w, err)
		return
	}

	balance, err := h.positionService.GetBalance(accountID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}
