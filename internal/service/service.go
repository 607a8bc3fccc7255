// Package service реализует бизнес-логику кошелька: создание депозитов,
// сверку вебхуков платёжного шлюза и рулетку наград.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LopesIA/navalhabackend/internal/model"
	"github.com/LopesIA/navalhabackend/internal/pagbank"
	"github.com/LopesIA/navalhabackend/internal/refid"
	"github.com/LopesIA/navalhabackend/internal/repository"
)

// ErrGatewayNotConfigured возвращается, если платёжный шлюз не настроен.
var (
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	// ErrGateway оборачивает сбои обращения к платёжному шлюзу.
	ErrGateway = errors.New("payment gateway failure")
	// ErrInvalidAmount возвращается для неположительной суммы депозита.
	ErrInvalidAmount = errors.New("deposit amount must be positive")
)

// Repository описывает контракт хранилища счетов, используемый сервисом.
type Repository interface {
	Close() error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	CreditDeposit(ctx context.Context, accountID, chargeRef string, amountCents int64, now time.Time) (*repository.CreditResult, error)
	GrantSpin(ctx context.Context, accountID string, slot model.RewardSlot, now time.Time) (*repository.SpinResult, error)
	RemoveNotificationTokens(ctx context.Context, accountID string, tokens []string) error
}

// Gateway описывает контракт платёжного шлюза.
type Gateway interface {
	CreateOrder(ctx context.Context, order pagbank.OrderRequest) (*pagbank.OrderResponse, error)
}

// Pusher описывает контракт провайдера push-уведомлений.
type Pusher interface {
	Send(ctx context.Context, tokens []string, title, body string) ([]string, error)
}

// Service содержит бизнес-логику кошелька.
type Service struct {
	repo       Repository
	gateway    Gateway
	pusher     Pusher
	webhookURL string
	logger     *zap.Logger

	// intn подменяется в тестах для детерминированного выбора слота.
	intn func(n int) int
}

// NewService создаёт сервис с указанными зависимостями. gateway и pusher могут
// быть nil, тогда соответствующие операции деградируют с ошибкой или no-op.
func NewService(repo Repository, gateway Gateway, pusher Pusher, webhookURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		gateway:    gateway,
		pusher:     pusher,
		webhookURL: webhookURL,
		logger:     logger,
		intn:       rand.Intn,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// DepositRequest — запрос на создание депозита через PIX.
type DepositRequest struct {
	AccountID string
	Amount    decimal.Decimal
	Name      string
	Email     string
	TaxID     string
	Phone     string
}

// DepositResponse содержит платёжные реквизиты, возвращаемые клиенту.
type DepositResponse struct {
	ReferenceID string `json:"reference_id"`
	QRCodeURL   string `json:"qr_code_url"`
	PIXCode     string `json:"pix_code"`
}

// CreateDeposit создаёт заказ в платёжном шлюзе и возвращает QR-код PIX.
// Сумма принимается в реалах и конвертируется в сентаво с округлением.
func (s *Service) CreateDeposit(ctx context.Context, req DepositRequest) (*DepositResponse, error) {
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	amountCents := req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.repo.GetAccount(ctx, req.AccountID); err != nil {
		return nil, err
	}

	ref := refid.New(refid.PurposeDeposit, req.AccountID)

	customer := pagbank.Customer{
		Name:  req.Name,
		Email: req.Email,
		TaxID: req.TaxID,
	}
	if len(req.Phone) >= 3 {
		customer.Phones = []pagbank.Phone{{
			Country: "55",
			Area:    req.Phone[:2],
			Number:  req.Phone[2:],
		}}
	}

	order := pagbank.OrderRequest{
		ReferenceID: ref.String(),
		Customer:    customer,
		Items: []pagbank.Item{{
			ReferenceID: "item-deposito-creditos",
			Name:        "Depósito de Créditos Navalha de Ouro",
			Quantity:    1,
			UnitAmount:  amountCents,
		}},
		Charges: []pagbank.Charge{{
			ReferenceID:   ref.String(),
			Description:   fmt.Sprintf("Depósito de R$ %.2f", float64(amountCents)/100),
			Amount:        pagbank.Amount{Value: amountCents},
			PaymentMethod: pagbank.PaymentMethod{Type: "PIX"},
		}},
		QRCodes: []pagbank.QRCode{{
			Amount: pagbank.Amount{Value: amountCents},
		}},
	}
	if s.webhookURL != "" {
		order.NotificationURLs = []string{s.webhookURL}
	}

	resp, err := s.gateway.CreateOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	if len(resp.QRCodes) == 0 {
		return nil, fmt.Errorf("%w: no qr codes in response", ErrGateway)
	}

	qr := resp.QRCodes[0]
	out := &DepositResponse{
		ReferenceID: ref.String(),
		PIXCode:     qr.Text,
	}
	if len(qr.Links) > 0 {
		out.QRCodeURL = qr.Links[0].Href
	}

	return out, nil
}

// WebhookResult — итог обработки одного вебхука по всем платежам.
type WebhookResult struct {
	Credited int
	Skipped  int
	Failed   int
}

// ProcessWebhook сверяет нотификацию шлюза со счётом и зачисляет каждый
// оплаченный платёж не более одного раза. Ошибка одного платежа не прерывает
// обработку остальных.
func (s *Service) ProcessWebhook(ctx context.Context, n pagbank.Notification) WebhookResult {
	var res WebhookResult

	for _, ch := range n.Charges {
		if ch.Status != pagbank.StatusPaid {
			res.Skipped++
			s.logger.Info("skipping charge with non-paid status",
				zap.String("referenceID", ch.ReferenceID), zap.String("status", ch.Status))
			continue
		}

		ref, err := refid.Parse(ch.ReferenceID)
		if err != nil {
			res.Skipped++
			s.logger.Warn("malformed reference id in webhook", zap.String("referenceID", ch.ReferenceID))
			continue
		}
		if ref.Purpose != refid.PurposeDeposit {
			res.Skipped++
			s.logger.Info("skipping charge with unexpected purpose",
				zap.String("referenceID", ch.ReferenceID), zap.String("purpose", ref.Purpose))
			continue
		}
		// Сумма берётся из нотификации шлюза, а не из reference id:
		// подделка идентификатора не должна влиять на размер зачисления.
		if ch.Amount.Value <= 0 {
			res.Skipped++
			s.logger.Warn("skipping charge with non-positive amount",
				zap.String("referenceID", ch.ReferenceID), zap.Int64("amount", ch.Amount.Value))
			continue
		}

		credit, err := s.repo.CreditDeposit(ctx, ref.OwnerID, ch.ReferenceID, ch.Amount.Value, time.Now())
		switch {
		case errors.Is(err, repository.ErrChargeAlreadyProcessed):
			res.Skipped++
			s.logger.Info("charge already processed", zap.String("referenceID", ch.ReferenceID))
		case errors.Is(err, repository.ErrAccountNotFound):
			res.Failed++
			s.logger.Error("account not found for paid charge",
				zap.String("referenceID", ch.ReferenceID), zap.String("accountID", ref.OwnerID))
		case err != nil:
			res.Failed++
			s.logger.Error("credit deposit", zap.Error(err), zap.String("referenceID", ch.ReferenceID))
		default:
			res.Credited++
			s.logger.Info("deposit credited",
				zap.String("accountID", ref.OwnerID),
				zap.Int64("amount", ch.Amount.Value),
				zap.Int64("points", credit.PointsGranted))
			s.notifyDeposit(ctx, ref.OwnerID, credit, ch.Amount.Value)
		}
	}

	return res
}

// notifyDeposit отправляет подтверждение депозита. Зачисление к этому моменту
// уже зафиксировано, поэтому любой сбой отправки не является фатальным.
func (s *Service) notifyDeposit(ctx context.Context, accountID string, credit *repository.CreditResult, amountCents int64) {
	if s.pusher == nil || len(credit.NotificationTokens) == 0 {
		return
	}

	body := fmt.Sprintf("R$ %.2f foram creditados na sua carteira.", float64(amountCents)/100)
	invalid, err := s.pusher.Send(ctx, credit.NotificationTokens, "Depósito confirmado", body)
	if err != nil {
		s.logger.Warn("send deposit notification", zap.Error(err), zap.String("accountID", accountID))
		return
	}

	if len(invalid) > 0 {
		if err := s.repo.RemoveNotificationTokens(ctx, accountID, invalid); err != nil {
			s.logger.Warn("remove invalid tokens", zap.Error(err), zap.String("accountID", accountID))
		}
	}
}

// SpinOutcome — результат одного прокрута рулетки.
type SpinOutcome struct {
	Slot    int    `json:"slot"`
	Message string `json:"message"`
}

// Spin выполняет один прокрут рулетки для указанного счёта: взвешенный выбор
// слота и атомарное применение награды с проверкой дневного лимита.
func (s *Service) Spin(ctx context.Context, accountID string) (*SpinOutcome, error) {
	idx := s.drawSlot()
	slot := model.RouletteSlots[idx]

	res, err := s.repo.GrantSpin(ctx, accountID, slot, time.Now())
	if err != nil {
		return nil, err
	}

	return &SpinOutcome{
		Slot:    idx,
		Message: spinMessage(res),
	}, nil
}

func (s *Service) drawSlot() int {
	total := 0
	for _, slot := range model.RouletteSlots {
		total += slot.Weight
	}

	n := s.intn(total)
	for i, slot := range model.RouletteSlots {
		n -= slot.Weight
		if n < 0 {
			return i
		}
	}
	return len(model.RouletteSlots) - 1
}

func spinMessage(res *repository.SpinResult) string {
	switch {
	case res.Points > 0:
		return fmt.Sprintf("you won %d loyalty points", res.Points)
	case res.VIPGranted:
		return fmt.Sprintf("VIP status extended until %s", res.VIPExpiresAt.Format(time.RFC3339))
	case res.Bonus != "":
		return fmt.Sprintf("%s extended until %s", res.Bonus.Label(), res.BonusExpiresAt.Format(time.RFC3339))
	}
	return "reward applied"
}

// Balance — баланс счёта в реалах и состояние лояльности.
type Balance struct {
	Balance       float64 `json:"balance"`
	LoyaltyPoints int64   `json:"loyalty_points"`
	VIP           bool    `json:"vip"`
}

// GetBalance возвращает баланс и баллы лояльности счёта.
func (s *Service) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		Balance:       float64(a.BalanceCents) / 100,
		LoyaltyPoints: a.LoyaltyPoints,
		VIP:           a.VIPActive(time.Now()),
	}, nil
}
