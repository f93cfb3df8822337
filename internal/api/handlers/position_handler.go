package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"futures/internal/models"
	"futures/internal/service"
)

// PositionHandler отвечает за управление позициями
//
// Endpoints:
// - POST /api/v1/positions - открыть позицию (market) или разместить лимитный ордер
// - GET /api/v1/positions?account_id=... - список открытых позиций аккаунта
// - GET /api/v1/positions/{id} - получить позицию
// - POST /api/v1/positions/{id}/close - закрыть позицию вручную
// - POST /api/v1/positions/{id}/cancel - отменить лимитный ордер
// - GET /api/v1/history?account_id=... - история сделок
type PositionHandler struct {
	positionService service.PositionServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(positionService service.PositionServiceInterface) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
	}
}

// CreatePosition открывает позицию или размещает лимитный ордер
//
// POST /api/v1/positions
//
// Тело запроса (JSON):
//
//	{
//	  "account_id": "acc-1",
//	  "symbol": "BTCUSDT",
//	  "side": "Long",
//	  "leverage": 10,
//	  "margin_type": "Isolated",
//	  "order_type": "Market",
//	  "quantity": 0.5,
//	  "take_profit_price": 70000,
//	  "stop_loss_price": 60000
//	}
//
// Для order_type=Limit обязательно поле limit_price.
//
// HTTP коды:
// - 201 Created: позиция создана
// - 400 Bad Request: ошибка валидации или недостаточно средств
// - 503 Service Unavailable: цена символа недоступна
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req service.CreatePositionRequest
	if err := apiJSON.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "BAD_JSON", "Invalid request body: "+err.Error())
		return
	}

	position, err := h.positionService.CreatePosition(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, position)
}

// GetPosition возвращает позицию по ID
//
// GET /api/v1/positions/{id}
//
// HTTP коды:
// - 200 OK: позиция найдена
// - 404 Not Found: позиция не существует
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	position, err := h.positionService.GetPosition(id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, position)
}

// ListPositions возвращает открытые позиции аккаунта
//
// GET /api/v1/positions?account_id=acc-1
//
// Возвращает Pending и Filled позиции (нетерминальные).
//
// HTTP коды:
// - 200 OK: список позиций (возможно пустой)
// - 400 Bad Request: не указан account_id
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		respondWithError(w, http.StatusBadRequest, "VALIDATION", "account_id is required")
		return
	}

	positions, err := h.positionService.ListOpen(accountID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if positions == nil {
		positions = []*models.Position{}
	}
	respondWithJSON(w, http.StatusOK, positions)
}

// ClosePosition закрывает открытую позицию по текущей рыночной цене
//
// POST /api/v1/positions/{id}/close
//
// HTTP коды:
// - 200 OK: позиция закрыта, возвращается терминальное состояние
// - 404 Not Found: позиция не существует
// - 409 Conflict: позиция уже закрыта
// - 503 Service Unavailable: цена символа недоступна
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	position, err := h.positionService.ClosePosition(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, position)
}

// CancelOrder отменяет ожидающий лимитный ордер
//
// POST /api/v1/positions/{id}/cancel
//
// Отмена идемпотентна: повторная отмена возвращает 200.
//
// HTTP коды:
// - 200 OK: ордер отменён (или уже был отменён)
// - 404 Not Found: позиция не существует
// - 409 Conflict: позиция исполнена и не может быть отменена
func (h *PositionHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.positionService.CancelOrder(id); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Order cancelled"})
}

// GetHistory возвращает страницу истории сделок аккаунта
//
// GET /api/v1/history?account_id=acc-1&limit=50&offset=0
//
// HTTP коды:
// - 200 OK: список записей (новые первыми)
// - 400 Bad Request: не указан account_id
func (h *PositionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		respondWithError(w, http.StatusBadRequest, "VALIDATION", "account_id is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	records, err := h.positionService.ListHistory(accountID, limit, offset)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, records)
}
