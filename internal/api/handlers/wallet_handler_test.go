package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"futures/internal/models"
)

// ============ WalletHandler Tests ============

func TestWalletHandler_GetBalance(t *testing.T) {
	t.Run("returns balance", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewWalletHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/acc-1", nil)
		req = mux.SetURLVars(req, map[string]string{"account_id": "acc-1"})
		w := httptest.NewRecorder()

		handler.GetBalance(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var balance models.WalletBalance
		if err := json.NewDecoder(w.Body).Decode(&balance); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if balance.Balance != 1000.0 {
			t.Errorf("balance = %v, want 1000", balance.Balance)
		}
		if balance.Asset != models.AssetUSDT {
			t.Errorf("asset = %s, want USDT", balance.Asset)
		}
	})

	t.Run("404 for unknown account", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewWalletHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/no-such", nil)
		req = mux.SetURLVars(req, map[string]string{"account_id": "no-such"})
		w := httptest.NewRecorder()

		handler.GetBalance(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestWalletHandler_Deposit(t *testing.T) {
	t.Run("credits wallet", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewWalletHandler(mockSvc)

		body := bytes.NewBufferString(`{"amount": 250}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/acc-1/deposit", body)
		req = mux.SetURLVars(req, map[string]string{"account_id": "acc-1"})
		w := httptest.NewRecorder()

		handler.Deposit(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var balance models.WalletBalance
		if err := json.NewDecoder(w.Body).Decode(&balance); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if balance.Balance != 1250.0 {
			t.Errorf("balance = %v, want 1250", balance.Balance)
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewWalletHandler(mockSvc)

		body := bytes.NewBufferString(`{"amount": -5}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/acc-1/deposit", body)
		req = mux.SetURLVars(req, map[string]string{"account_id": "acc-1"})
		w := httptest.NewRecorder()

		handler.Deposit(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewWalletHandler(mockSvc)

		body := bytes.NewBufferString(`{amount}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/acc-1/deposit", body)
		req = mux.SetURLVars(req, map[string]string{"account_id": "acc-1"})
		w := httptest.NewRecorder()

		handler.Deposit(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}
