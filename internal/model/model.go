// Package model содержит доменные сущности кошелька и программы лояльности.
package model

import "time"

// Role описывает роль учётной записи: клиент или профессионал (барбер).
type Role string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
)

// Tier описывает уровень платной подписки профессионала.
type Tier string

const (
	TierNone   Tier = ""
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// BonusKey идентифицирует временный бонус учётной записи.
type BonusKey string

const (
	BonusBubbleGold      BonusKey = "bubble_gold"
	BonusBubbleSilver    BonusKey = "bubble_silver"
	BonusFrameNeon       BonusKey = "frame_neon"
	BonusVisibilityBoost BonusKey = "visibility_boost"
)

// Label возвращает человекочитаемое название бонуса для ответов API.
func (k BonusKey) Label() string {
	switch k {
	case BonusBubbleGold:
		return "gold chat bubble"
	case BonusBubbleSilver:
		return "silver chat bubble"
	case BonusFrameNeon:
		return "neon profile frame"
	case BonusVisibilityBoost:
		return "profile visibility boost"
	}
	return string(k)
}

// Account представляет учётную запись пользователя с балансом и состоянием лояльности.
type Account struct {
	ID                 string
	BalanceCents       int64
	LoyaltyPoints      int64
	Role               Role
	VIP                bool
	VIPExpiresAt       *time.Time
	Tier               Tier
	TierExpiresAt      *time.Time
	Bonuses            map[BonusKey]time.Time
	LastSpinDate       *time.Time
	SpinsToday         int
	NotificationTokens []string
	CreatedAt          time.Time
}

// VIPActive сообщает, действует ли VIP-статус на указанный момент времени.
func (a *Account) VIPActive(now time.Time) bool {
	return a.VIP && a.VIPExpiresAt != nil && a.VIPExpiresAt.After(now)
}

// TierActive сообщает, действует ли подписка на указанный момент времени.
func (a *Account) TierActive(now time.Time) bool {
	return a.Tier != TierNone && a.TierExpiresAt != nil && a.TierExpiresAt.After(now)
}

// DailySpinQuota возвращает дневной лимит прокрутов рулетки для учётной записи.
// Без активной подписки лимит равен одному прокруту в день.
func (a *Account) DailySpinQuota(now time.Time) int {
	if a.TierActive(now) {
		switch a.Tier {
		case TierSilver:
			return 2
		case TierGold:
			return 3
		}
	}
	return 1
}

// Ставки начисления баллов лояльности: баллов на каждые 10000 сентаво депозита.
const (
	PointsRateStandard = 8
	PointsRateVIP      = 16
)

// DepositPoints вычисляет баллы лояльности за депозит указанной суммы в сентаво.
func DepositPoints(amountCents int64, vip bool) int64 {
	rate := int64(PointsRateStandard)
	if vip {
		rate = PointsRateVIP
	}
	return amountCents * rate / 10000
}

// TransactionKind описывает тип записи в журнале операций.
type TransactionKind string

const (
	TransactionDeposit  TransactionKind = "deposit"
	TransactionRoulette TransactionKind = "roulette"
)

// TransactionEntry описывает одну запись журнала операций по счёту.
type TransactionEntry struct {
	AccountID   string
	Kind        TransactionKind
	AmountCents int64
	CreatedAt   time.Time
}

// RewardKind описывает тип награды в слоте рулетки.
type RewardKind string

const (
	RewardPoints  RewardKind = "points"
	RewardBonus   RewardKind = "bonus"
	RewardMystery RewardKind = "mystery"
)

// Длительности временных наград рулетки.
const (
	BonusGrantDuration   = 24 * time.Hour
	MysteryBoostDuration = 24 * time.Hour
	MysteryVIPDuration   = 5 * 24 * time.Hour
)

// RewardSlot описывает один слот рулетки. Таблица слотов задаёт и состав
// наград, и веса выпадения, чтобы вероятности можно было менять без правок кода.
type RewardSlot struct {
	Kind     RewardKind
	Points   int64
	Bonus    BonusKey
	Duration time.Duration
	Weight   int
}

// RouletteSlots — фиксированный упорядоченный набор слотов рулетки.
// Индекс слота возвращается клиенту для анимации колеса.
var RouletteSlots = []RewardSlot{
	{Kind: RewardPoints, Points: 1, Weight: 1},
	{Kind: RewardPoints, Points: 3, Weight: 1},
	{Kind: RewardBonus, Bonus: BonusBubbleGold, Duration: BonusGrantDuration, Weight: 1},
	{Kind: RewardPoints, Points: 5, Weight: 1},
	{Kind: RewardBonus, Bonus: BonusFrameNeon, Duration: BonusGrantDuration, Weight: 1},
	{Kind: RewardMystery, Weight: 1},
	{Kind: RewardPoints, Points: 10, Weight: 1},
	{Kind: RewardBonus, Bonus: BonusBubbleSilver, Duration: BonusGrantDuration, Weight: 1},
}
