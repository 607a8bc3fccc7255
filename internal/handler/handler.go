// Package handler содержит HTTP-обработчики API кошелька.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LopesIA/navalhabackend/internal/middleware"
	"github.com/LopesIA/navalhabackend/internal/pagbank"
	"github.com/LopesIA/navalhabackend/internal/repository"
	"github.com/LopesIA/navalhabackend/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateDeposit(ctx context.Context, req service.DepositRequest) (*service.DepositResponse, error)
	ProcessWebhook(ctx context.Context, n pagbank.Notification) service.WebhookResult
	Spin(ctx context.Context, accountID string) (*service.SpinOutcome, error)
	GetBalance(ctx context.Context, accountID string) (*service.Balance, error)
}

// Handler реализует HTTP-обработчики API кошелька.
type Handler struct {
	service   Service
	logger    *zap.Logger
	signature *middleware.SignatureMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, signature *middleware.SignatureMiddleware) *Handler {
	return &Handler{
		service:   s,
		logger:    logger,
		signature: signature,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type depositRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	TaxID     string          `json:"tax_id"`
	Phone     string          `json:"phone"`
}

// CreateDeposit создаёт PIX-депозит через платёжный шлюз.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if req.AccountID == "" || req.Name == "" || req.Email == "" || req.TaxID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing customer fields")
		return
	}

	resp, err := h.service.CreateDeposit(r.Context(), service.DepositRequest{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Name:      req.Name,
		Email:     req.Email,
		TaxID:     req.TaxID,
		Phone:     req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "bad_request", "deposit amount must be positive")
		case errors.Is(err, repository.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account_not_found", "account not found")
		case errors.Is(err, service.ErrGateway), errors.Is(err, service.ErrGatewayNotConfigured):
			h.logger.Error("create deposit gateway error", zap.Error(err), zap.String("accountID", req.AccountID))
			writeError(w, http.StatusBadGateway, "gateway_error", "failed to create deposit, try again later")
		default:
			h.logger.Error("create deposit error", zap.Error(err), zap.String("accountID", req.AccountID))
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Webhook принимает нотификацию платёжного шлюза. Ответ всегда 200, чтобы шлюз
// не ретраил бесконечно; 500 возвращается только если ни один платёж не был
// зачислен и хотя бы один завершился ошибкой.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var n pagbank.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid webhook body")
		return
	}

	if len(n.Charges) == 0 {
		h.logger.Info("webhook without charges, nothing to do")
		w.WriteHeader(http.StatusOK)
		return
	}

	res := h.service.ProcessWebhook(r.Context(), n)
	h.logger.Info("webhook processed",
		zap.Int("credited", res.Credited),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))

	if res.Failed > 0 && res.Credited == 0 {
		writeError(w, http.StatusInternalServerError, "reconciliation_failed", "no charges could be processed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type spinRequest struct {
	AccountID string `json:"account_id"`
}

// Spin выполняет прокрут рулетки для указанного счёта.
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	var req spinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "account_id is required")
		return
	}

	outcome, err := h.service.Spin(r.Context(), req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account_not_found", "account not found")
		case errors.Is(err, repository.ErrSpinsExhausted):
			writeError(w, http.StatusConflict, "spins_exhausted", "no spins left today")
		default:
			h.logger.Error("spin error", zap.Error(err), zap.String("accountID", req.AccountID))
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GetBalance возвращает баланс и баллы лояльности счёта.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "account id is required")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account_not_found", "account not found")
			return
		}
		h.logger.Error("get balance error", zap.Error(err), zap.String("accountID", accountID))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, balance)
}
