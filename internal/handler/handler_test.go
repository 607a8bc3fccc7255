package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/LopesIA/navalhabackend/internal/middleware"
	"github.com/LopesIA/navalhabackend/internal/pagbank"
	"github.com/LopesIA/navalhabackend/internal/repository"
	"github.com/LopesIA/navalhabackend/internal/service"
)

type stubService struct {
	depositResp *service.DepositResponse
	depositErr  error

	webhookResult service.WebhookResult
	webhookCalls  int

	spinOutcome *service.SpinOutcome
	spinErr     error

	balanceResp *service.Balance
	balanceErr  error
}

func (s *stubService) CreateDeposit(ctx context.Context, req service.DepositRequest) (*service.DepositResponse, error) {
	return s.depositResp, s.depositErr
}

func (s *stubService) ProcessWebhook(ctx context.Context, n pagbank.Notification) service.WebhookResult {
	s.webhookCalls++
	return s.webhookResult
}

func (s *stubService) Spin(ctx context.Context, accountID string) (*service.SpinOutcome, error) {
	return s.spinOutcome, s.spinErr
}

func (s *stubService) GetBalance(ctx context.Context, accountID string) (*service.Balance, error) {
	return s.balanceResp, s.balanceErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger, middleware.NewSignatureMiddleware(""))
}

func TestWebhook_InvalidBody(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/pagbank", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if svc.webhookCalls != 0 {
		t.Fatalf("service must not be called for unparseable body")
	}
}

func TestWebhook_NoChargesIsNoOp(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/pagbank", strings.NewReader(`{"event":"ping"}`))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.webhookCalls != 0 {
		t.Fatalf("service must not be called without charges")
	}
}

func webhookBody(t *testing.T) *bytes.Reader {
	t.Helper()

	body, err := json.Marshal(pagbank.Notification{
		Charges: []pagbank.NotificationCharge{
			{ReferenceID: "deposito_U1_tok", Status: pagbank.StatusPaid, Amount: pagbank.Amount{Value: 5000}},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func TestWebhook_AllFailed(t *testing.T) {
	svc := &stubService{webhookResult: service.WebhookResult{Failed: 1}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/pagbank", webhookBody(t))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestWebhook_PartialFailureStillOK(t *testing.T) {
	svc := &stubService{webhookResult: service.WebhookResult{Credited: 1, Failed: 1}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/pagbank", webhookBody(t))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestSpin_Success(t *testing.T) {
	svc := &stubService{spinOutcome: &service.SpinOutcome{Slot: 3, Message: "you won 5 loyalty points"}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/roulette/spin", strings.NewReader(`{"account_id":"U1"}`))
	rec := httptest.NewRecorder()

	h.Spin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var outcome service.SpinOutcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Slot != 3 {
		t.Fatalf("slot = %d, want 3", outcome.Slot)
	}
}

func TestSpin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{name: "exhausted", err: repository.ErrSpinsExhausted, wantStatus: http.StatusConflict, wantKind: "spins_exhausted"},
		{name: "not found", err: repository.ErrAccountNotFound, wantStatus: http.StatusNotFound, wantKind: "account_not_found"},
		{name: "internal", err: context.DeadlineExceeded, wantStatus: http.StatusInternalServerError, wantKind: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{spinErr: tt.err}
			h := newTestHandler(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/api/roulette/spin", strings.NewReader(`{"account_id":"U1"}`))
			rec := httptest.NewRecorder()

			h.Spin(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tt.wantKind {
				t.Fatalf("error kind = %q, want %q", resp.Error, tt.wantKind)
			}
		})
	}
}

func TestSpin_MissingAccountID(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/roulette/spin", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.Spin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateDeposit_MissingFields(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/deposits",
		strings.NewReader(`{"account_id":"U1","amount":50}`))
	rec := httptest.NewRecorder()

	h.CreateDeposit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateDeposit_GatewayFailure(t *testing.T) {
	svc := &stubService{depositErr: service.ErrGateway}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/deposits",
		strings.NewReader(`{"account_id":"U1","amount":50,"name":"n","email":"e","tax_id":"t","phone":"11987654321"}`))
	rec := httptest.NewRecorder()

	h.CreateDeposit(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestCreateDeposit_Success(t *testing.T) {
	svc := &stubService{depositResp: &service.DepositResponse{
		ReferenceID: "deposito_U1_tok",
		QRCodeURL:   "https://qr.example/1.png",
		PIXCode:     "pix-code",
	}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/deposits",
		strings.NewReader(`{"account_id":"U1","amount":50,"name":"n","email":"e","tax_id":"t","phone":"11987654321"}`))
	rec := httptest.NewRecorder()

	h.CreateDeposit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
}

func TestGetBalance_ViaRouter(t *testing.T) {
	svc := &stubService{balanceResp: &service.Balance{Balance: 50, LoyaltyPoints: 4}}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/U1/balance", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestGetBalance_NotFound(t *testing.T) {
	svc := &stubService{balanceErr: repository.ErrAccountNotFound}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/missing/balance", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
