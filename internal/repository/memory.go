package repository

import (
	"context"
	"sync"
	"time"

	"github.com/LopesIA/navalhabackend/internal/model"
)

// MemoryRepository — хранилище счетов в памяти с той же семантикой транзакций,
// что и у PostgresRepository: каждая операция выполняется атомарно под мьютексом.
// Используется в тестах вместо внешней БД.
type MemoryRepository struct {
	mu        sync.Mutex
	accounts  map[string]*model.Account
	processed map[string]time.Time
	log       []model.TransactionEntry
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:  make(map[string]*model.Account),
		processed: make(map[string]time.Time),
	}
}

// Close освобождает ресурсы хранилища. Для хранилища в памяти это no-op.
func (r *MemoryRepository) Close() error {
	return nil
}

// PutAccount сохраняет учётную запись. Предназначен для подготовки тестовых данных.
func (r *MemoryRepository) PutAccount(a *model.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Bonuses == nil {
		a.Bonuses = make(map[model.BonusKey]time.Time)
	}
	r.accounts[a.ID] = a
}

// GetAccount возвращает копию учётной записи.
func (r *MemoryRepository) GetAccount(_ context.Context, accountID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

// CreditDeposit зачисляет платёж не более одного раза, как и версия для PostgreSQL.
func (r *MemoryRepository) CreditDeposit(_ context.Context, accountID, chargeRef string, amountCents int64, now time.Time) (*CreditResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	if _, done := r.processed[chargeRef]; done {
		return nil, ErrChargeAlreadyProcessed
	}

	points := model.DepositPoints(amountCents, a.VIPActive(now))

	r.processed[chargeRef] = now
	a.BalanceCents += amountCents
	a.LoyaltyPoints += points
	r.log = append(r.log, model.TransactionEntry{
		AccountID:   accountID,
		Kind:        model.TransactionDeposit,
		AmountCents: amountCents,
		CreatedAt:   now,
	})

	tokens := make([]string, len(a.NotificationTokens))
	copy(tokens, a.NotificationTokens)

	return &CreditResult{
		PointsGranted:      points,
		NewBalanceCents:    a.BalanceCents,
		NotificationTokens: tokens,
	}, nil
}

// GrantSpin атомарно проверяет лимит и применяет награду слота.
func (r *MemoryRepository) GrantSpin(_ context.Context, accountID string, slot model.RewardSlot, now time.Time) (*SpinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	spins := a.SpinsToday
	if a.LastSpinDate == nil || a.LastSpinDate.Format(dateLayout) != now.Format(dateLayout) {
		spins = 0
	}
	if spins >= a.DailySpinQuota(now) {
		return nil, ErrSpinsExhausted
	}

	result := &SpinResult{}

	switch slot.Kind {
	case model.RewardPoints:
		a.LoyaltyPoints += slot.Points
		result.Points = slot.Points

	case model.RewardBonus:
		result.Bonus = slot.Bonus
		result.BonusExpiresAt = extendBonusInMemory(a, slot.Bonus, slot.Duration, now)

	case model.RewardMystery:
		if a.Role == model.RoleProfessional {
			result.Bonus = model.BonusVisibilityBoost
			result.BonusExpiresAt = extendBonusInMemory(a, model.BonusVisibilityBoost, model.MysteryBoostDuration, now)
		} else {
			base := now
			if a.VIPActive(now) {
				base = *a.VIPExpiresAt
			}
			expiresAt := base.Add(model.MysteryVIPDuration)
			a.VIP = true
			a.VIPExpiresAt = &expiresAt
			result.VIPGranted = true
			result.VIPExpiresAt = expiresAt
		}
	}

	a.SpinsToday = spins + 1
	day := now
	a.LastSpinDate = &day
	r.log = append(r.log, model.TransactionEntry{
		AccountID:   accountID,
		Kind:        model.TransactionRoulette,
		AmountCents: result.Points,
		CreatedAt:   now,
	})

	return result, nil
}

func extendBonusInMemory(a *model.Account, key model.BonusKey, d time.Duration, now time.Time) time.Time {
	base := now
	if current, ok := a.Bonuses[key]; ok && current.After(now) {
		base = current
	}
	expiresAt := base.Add(d)
	a.Bonuses[key] = expiresAt
	return expiresAt
}

// RemoveNotificationTokens удаляет указанные токены уведомлений счёта.
func (r *MemoryRepository) RemoveNotificationTokens(_ context.Context, accountID string, tokens []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}

	dead := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		dead[t] = struct{}{}
	}

	kept := a.NotificationTokens[:0]
	for _, t := range a.NotificationTokens {
		if _, ok := dead[t]; !ok {
			kept = append(kept, t)
		}
	}
	a.NotificationTokens = kept

	return nil
}

// PurgeExpiredBonuses удаляет истёкшие бонусы со всех счетов.
func (r *MemoryRepository) PurgeExpiredBonuses(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for _, a := range r.accounts {
		for key, expiresAt := range a.Bonuses {
			if !expiresAt.After(now) {
				delete(a.Bonuses, key)
				purged++
			}
		}
	}
	return purged, nil
}

// ExpireVIP снимает VIP-флаг со счетов с истёкшим сроком.
func (r *MemoryRepository) ExpireVIP(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for _, a := range r.accounts {
		if a.VIP && a.VIPExpiresAt != nil && !a.VIPExpiresAt.After(now) {
			a.VIP = false
			expired++
		}
	}
	return expired, nil
}

// ProcessedCharges возвращает число сохранённых маркеров идемпотентности.
func (r *MemoryRepository) ProcessedCharges() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processed)
}

// TransactionLog возвращает копию журнала операций.
func (r *MemoryRepository) TransactionLog() []model.TransactionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.TransactionEntry, len(r.log))
	copy(out, r.log)
	return out
}

func cloneAccount(a *model.Account) *model.Account {
	out := *a
	out.Bonuses = make(map[model.BonusKey]time.Time, len(a.Bonuses))
	for k, v := range a.Bonuses {
		out.Bonuses[k] = v
	}
	out.NotificationTokens = make([]string, len(a.NotificationTokens))
	copy(out.NotificationTokens, a.NotificationTokens)
	if a.VIPExpiresAt != nil {
		v := *a.VIPExpiresAt
		out.VIPExpiresAt = &v
	}
	if a.TierExpiresAt != nil {
		v := *a.TierExpiresAt
		out.TierExpiresAt = &v
	}
	if a.LastSpinDate != nil {
		v := *a.LastSpinDate
		out.LastSpinDate = &v
	}
	return &out
}
