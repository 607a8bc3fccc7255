// Package repository содержит реализации хранилища счетов и журнала операций.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/LopesIA/navalhabackend/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountNotFound возвращается, если учётная запись не найдена.
var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrChargeAlreadyProcessed возвращается при повторной доставке уже зачисленного платежа.
	ErrChargeAlreadyProcessed = errors.New("charge already processed")
	// ErrSpinsExhausted возвращается, если дневной лимит прокрутов рулетки исчерпан.
	ErrSpinsExhausted = errors.New("daily spins exhausted")
)

const dateLayout = "2006-01-02"

// CreditResult содержит итог зачисления депозита на счёт.
type CreditResult struct {
	PointsGranted      int64
	NewBalanceCents    int64
	NotificationTokens []string
}

// SpinResult описывает применённую награду одного прокрута рулетки.
type SpinResult struct {
	Points         int64
	Bonus          model.BonusKey
	BonusExpiresAt time.Time
	VIPGranted     bool
	VIPExpiresAt   time.Time
}

// PostgresRepository предоставляет доступ к хранилищу счетов в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию при сбоях сериализации и дедлоках.
// Доменные ошибки (не найден счёт, повтор платежа, исчерпан лимит) не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			(pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected) {
			return retry.RetryableError(err)
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreditDeposit зачисляет оплаченный платёж на счёт не более одного раза.
// Маркер идемпотентности, изменение баланса, начисление баллов и запись в журнал
// выполняются в одной транзакции с блокировкой строки счёта.
func (r *PostgresRepository) CreditDeposit(ctx context.Context, accountID, chargeRef string, amountCents int64, now time.Time) (*CreditResult, error) {
	var res *CreditResult

	err := r.withRetry(ctx, func() error {
		res = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			vip          bool
			vipExpiresAt *time.Time
		)
		err = tx.QueryRow(ctx,
			`SELECT vip, vip_expires_at FROM accounts WHERE id = $1 FOR UPDATE`,
			accountID,
		).Scan(&vip, &vipExpiresAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}

		// Маркер идемпотентности проверяется внутри той же транзакции, что и
		// изменение баланса: две конкурентные доставки одного платежа не могут
		// обе пройти вставку.
		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO processed_charges (reference_id, processed_at) VALUES ($1, $2)
			 ON CONFLICT (reference_id) DO NOTHING`,
			chargeRef, now,
		)
		if err != nil {
			return fmt.Errorf("insert idempotency marker: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrChargeAlreadyProcessed
		}

		vipActive := vip && vipExpiresAt != nil && vipExpiresAt.After(now)
		points := model.DepositPoints(amountCents, vipActive)

		var newBalance int64
		err = tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $2, loyalty_points = loyalty_points + $3
			 WHERE id = $1
			 RETURNING balance`,
			accountID, amountCents, points,
		).Scan(&newBalance)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO transactions_log (account_id, kind, amount, created_at) VALUES ($1, $2, $3, $4)`,
			accountID, string(model.TransactionDeposit), amountCents, now,
		)
		if err != nil {
			return fmt.Errorf("append transaction log: %w", err)
		}

		tokens, err := selectTokens(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		res = &CreditResult{
			PointsGranted:      points,
			NewBalanceCents:    newBalance,
			NotificationTokens: tokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GrantSpin атомарно проверяет дневной лимит и применяет награду слота.
// Проверка лимита и фиксация прокрута выполняются в одной транзакции,
// поэтому два одновременных запроса не могут оба пройти проверку.
func (r *PostgresRepository) GrantSpin(ctx context.Context, accountID string, slot model.RewardSlot, now time.Time) (*SpinResult, error) {
	var res *SpinResult

	err := r.withRetry(ctx, func() error {
		res = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			role          string
			vip           bool
			vipExpiresAt  *time.Time
			tier          string
			tierExpiresAt *time.Time
			lastSpinDate  *time.Time
			spinsToday    int
		)
		err = tx.QueryRow(ctx,
			`SELECT role, vip, vip_expires_at, tier, tier_expires_at, last_spin_date, spins_today
			 FROM accounts WHERE id = $1 FOR UPDATE`,
			accountID,
		).Scan(&role, &vip, &vipExpiresAt, &tier, &tierExpiresAt, &lastSpinDate, &spinsToday)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}

		// Смена календарного дня обнуляет счётчик до сравнения с лимитом.
		spins := spinsToday
		if lastSpinDate == nil || lastSpinDate.Format(dateLayout) != now.Format(dateLayout) {
			spins = 0
		}

		acc := model.Account{
			Tier:          model.Tier(tier),
			TierExpiresAt: tierExpiresAt,
		}
		if spins >= acc.DailySpinQuota(now) {
			return ErrSpinsExhausted
		}

		result := &SpinResult{}

		switch slot.Kind {
		case model.RewardPoints:
			_, err = tx.Exec(ctx,
				`UPDATE accounts SET loyalty_points = loyalty_points + $2 WHERE id = $1`,
				accountID, slot.Points,
			)
			if err != nil {
				return fmt.Errorf("add loyalty points: %w", err)
			}
			result.Points = slot.Points

		case model.RewardBonus:
			expiresAt, err := extendBonus(ctx, tx, accountID, slot.Bonus, slot.Duration, now)
			if err != nil {
				return err
			}
			result.Bonus = slot.Bonus
			result.BonusExpiresAt = expiresAt

		case model.RewardMystery:
			if model.Role(role) == model.RoleProfessional {
				expiresAt, err := extendBonus(ctx, tx, accountID, model.BonusVisibilityBoost, model.MysteryBoostDuration, now)
				if err != nil {
					return err
				}
				result.Bonus = model.BonusVisibilityBoost
				result.BonusExpiresAt = expiresAt
			} else {
				base := now
				if vip && vipExpiresAt != nil && vipExpiresAt.After(now) {
					base = *vipExpiresAt
				}
				expiresAt := base.Add(model.MysteryVIPDuration)
				_, err = tx.Exec(ctx,
					`UPDATE accounts SET vip = TRUE, vip_expires_at = $2 WHERE id = $1`,
					accountID, expiresAt,
				)
				if err != nil {
					return fmt.Errorf("extend vip: %w", err)
				}
				result.VIPGranted = true
				result.VIPExpiresAt = expiresAt
			}

		default:
			return fmt.Errorf("unknown reward kind: %s", slot.Kind)
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts SET spins_today = $2, last_spin_date = $3::date WHERE id = $1`,
			accountID, spins+1, now.Format(dateLayout),
		)
		if err != nil {
			return fmt.Errorf("commit spin counter: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO transactions_log (account_id, kind, amount, created_at) VALUES ($1, $2, $3, $4)`,
			accountID, string(model.TransactionRoulette), result.Points, now,
		)
		if err != nil {
			return fmt.Errorf("append transaction log: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		res = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// extendBonus продлевает срок действия бонуса. Если бонус ещё активен, срок
// прибавляется к текущему, иначе отсчитывается от настоящего момента.
func extendBonus(ctx context.Context, tx pgx.Tx, accountID string, key model.BonusKey, d time.Duration, now time.Time) (time.Time, error) {
	var current time.Time
	err := tx.QueryRow(ctx,
		`SELECT expires_at FROM account_bonuses WHERE account_id = $1 AND bonus_key = $2`,
		accountID, string(key),
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("select bonus: %w", err)
	}

	base := now
	if err == nil && current.After(now) {
		base = current
	}
	expiresAt := base.Add(d)

	_, err = tx.Exec(ctx,
		`INSERT INTO account_bonuses (account_id, bonus_key, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, bonus_key) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		accountID, string(key), expiresAt,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("upsert bonus: %w", err)
	}

	return expiresAt, nil
}

func selectTokens(ctx context.Context, tx pgx.Tx, accountID string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT token FROM notification_tokens WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tokens, nil
}

// GetAccount возвращает учётную запись вместе с бонусами и токенами уведомлений.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	var (
		a    model.Account
		role string
		tier string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, balance, loyalty_points, role, vip, vip_expires_at, tier, tier_expires_at,
		        last_spin_date, spins_today, created_at
		 FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&a.ID, &a.BalanceCents, &a.LoyaltyPoints, &role, &a.VIP, &a.VIPExpiresAt,
		&tier, &a.TierExpiresAt, &a.LastSpinDate, &a.SpinsToday, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.Role = model.Role(role)
	a.Tier = model.Tier(tier)

	a.Bonuses = make(map[model.BonusKey]time.Time)
	rows, err := r.pool.Query(ctx,
		`SELECT bonus_key, expires_at FROM account_bonuses WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bonuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key       string
			expiresAt time.Time
		)
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan bonus: %w", err)
		}
		a.Bonuses[model.BonusKey(key)] = expiresAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	tokenRows, err := r.pool.Query(ctx,
		`SELECT token FROM notification_tokens WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tokens: %w", err)
	}
	defer tokenRows.Close()

	for tokenRows.Next() {
		var token string
		if err := tokenRows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		a.NotificationTokens = append(a.NotificationTokens, token)
	}
	if err := tokenRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &a, nil
}

// RemoveNotificationTokens удаляет недействительные токены уведомлений счёта.
func (r *PostgresRepository) RemoveNotificationTokens(ctx context.Context, accountID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`DELETE FROM notification_tokens WHERE account_id = $1 AND token = ANY($2)`,
		accountID, tokens,
	)
	if err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

// PurgeExpiredBonuses удаляет истёкшие бонусы и возвращает число удалённых записей.
func (r *PostgresRepository) PurgeExpiredBonuses(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM account_bonuses WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("purge bonuses: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// ExpireVIP снимает VIP-флаг со счетов с истёкшим сроком и возвращает их число.
func (r *PostgresRepository) ExpireVIP(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET vip = FALSE
		 WHERE vip AND vip_expires_at IS NOT NULL AND vip_expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire vip: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
