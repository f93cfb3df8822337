package handlers

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"futures/internal/feed"
	"futures/internal/repository"
	"futures/internal/service"
)

var apiJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	apiJSON.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ошибку с кодом для программной обработки
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondWithServiceError отображает ошибку бизнес-логики на HTTP статус
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.Is(err, repository.ErrPositionNotFound):
		respondWithError(w, http.StatusNotFound, "POSITION_NOT_FOUND", err.Error())
	case errors.Is(err, repository.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, "WALLET_NOT_FOUND", err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		respondWithError(w, http.StatusBadRequest, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, service.ErrAlreadyClosed):
		respondWithError(w, http.StatusConflict, "ALREADY_CLOSED", err.Error())
	case errors.Is(err, service.ErrNotCancellable):
		respondWithError(w, http.StatusConflict, "NOT_CANCELLABLE", err.Error())
	case errors.Is(err, feed.ErrUnknownSymbol):
		respondWithError(w, http.StatusBadRequest, "UNKNOWN_SYMBOL", err.Error())
	case errors.Is(err, feed.ErrPriceUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "PRICE_UNAVAILABLE", err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}
