package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"
)

// PostgresBillingStore реализация хранилища биллинга через PostgreSQL.
//
// Атомарность достигается одной транзакцией на событие: вставка в журнал
// processed_events (PRIMARY KEY по event_id) и мутация состояния коммитятся
// вместе. Конкурентные доставки одного event_id разрешает уникальный
// констрейнт; порядок событий для одной подписки — условный UPDATE по
// source_event_time.
type PostgresBillingStore struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresBillingStore создает новое хранилище биллинга через PostgreSQL
func NewPostgresBillingStore(db *pgxpool.Pool, log *logger.Logger) *PostgresBillingStore {
	return &PostgresBillingStore{
		db:  db,
		log: log,
	}
}

// Connect открывает пул соединений и проверяет доступность базы
func Connect(ctx context.Context, dsn string, log *logger.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("Database connection established")
	return pool, nil
}

// EnsureSchema создает таблицы хранилища, если их еще нет
func (s *PostgresBillingStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS processed_events (
			event_id    TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			received_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			subscription_id     TEXT PRIMARY KEY,
			customer_id         TEXT NOT NULL DEFAULT '',
			plan_id             TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL,
			current_period_end  TIMESTAMPTZ,
			updated_by_event_id TEXT NOT NULL,
			source_event_time   TIMESTAMPTZ NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_customer ON subscriptions (customer_id);

		CREATE TABLE IF NOT EXISTS checkout_intents (
			session_id      TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL DEFAULT '',
			customer_email  TEXT NOT NULL DEFAULT '',
			subscription_id TEXT NOT NULL DEFAULT '',
			amount_total    BIGINT NOT NULL,
			currency        TEXT NOT NULL DEFAULT '',
			source_event_id TEXT NOT NULL,
			completed_at    TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payments (
			id              UUID PRIMARY KEY,
			invoice_id      TEXT NOT NULL,
			customer_id     TEXT NOT NULL,
			subscription_id TEXT NOT NULL DEFAULT '',
			amount_paid     BIGINT NOT NULL,
			currency        TEXT NOT NULL,
			source_event_id TEXT NOT NULL,
			paid_at         TIMESTAMPTZ NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payments_customer ON payments (customer_id);
	`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// insertProcessedEvent вставляет событие в журнал внутри транзакции.
// Возвращает false, если событие уже есть (повторная доставка).
func (s *PostgresBillingStore) insertProcessedEvent(ctx context.Context, tx pgx.Tx, event domain.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, event_type, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`

	ct, err := tx.Exec(ctx, query, event.ID, event.RawType, event.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert processed event: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// upsertSubscription применяет запись о подписке внутри транзакции.
// Условие на source_event_time реализует инвариант порядка; поля, которых
// событие не несет, сохраняются через COALESCE.
func (s *PostgresBillingStore) upsertSubscription(ctx context.Context, tx pgx.Tx, sub domain.Subscription) (bool, error) {
	query := `
		INSERT INTO subscriptions (
			subscription_id, customer_id, plan_id, status,
			current_period_end, updated_by_event_id, source_event_time,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (subscription_id) DO UPDATE SET
			customer_id         = COALESCE(NULLIF(EXCLUDED.customer_id, ''), subscriptions.customer_id),
			plan_id             = COALESCE(NULLIF(EXCLUDED.plan_id, ''), subscriptions.plan_id),
			status              = EXCLUDED.status,
			current_period_end  = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
			updated_by_event_id = EXCLUDED.updated_by_event_id,
			source_event_time   = EXCLUDED.source_event_time,
			updated_at          = now()
		WHERE subscriptions.source_event_time <= EXCLUDED.source_event_time
	`

	ct, err := tx.Exec(ctx, query,
		sub.SubscriptionID,
		sub.CustomerID,
		sub.PlanID,
		sub.Status,
		sub.CurrentPeriodEnd,
		sub.UpdatedByEventID,
		sub.SourceEventTime,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ApplyCheckoutCompleted фиксирует завершение checkout-сессии
func (s *PostgresBillingStore) ApplyCheckoutCompleted(ctx context.Context, event domain.WebhookEvent, intent domain.CheckoutIntent) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := s.insertProcessedEvent(ctx, tx, event)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	query := `
		INSERT INTO checkout_intents (
			session_id, customer_id, customer_email, subscription_id,
			amount_total, currency, source_event_id, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING
	`
	_, err = tx.Exec(ctx, query,
		intent.SessionID,
		intent.CustomerID,
		intent.CustomerEmail,
		intent.SubscriptionID,
		intent.AmountTotal,
		intent.Currency,
		intent.SourceEventID,
		intent.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert checkout intent: %w", err)
	}

	// Сессия в режиме подписки уже несет ID подписки: заводим ожидающую
	// запись, событие subscription._ уточнит ее позже.
	if intent.SubscriptionID != "" {
		_, err = s.upsertSubscription(ctx, tx, domain.Subscription{
			SubscriptionID:   intent.SubscriptionID,
			CustomerID:       intent.CustomerID,
			Status:           domain.SubscriptionStatusIncomplete,
			UpdatedByEventID: event.ID,
			SourceEventTime:  event.Created,
		})
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ApplyInvoicePaid добавляет запись о платеже
func (s *PostgresBillingStore) ApplyInvoicePaid(ctx context.Context, event domain.WebhookEvent, payment domain.Payment) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := s.insertProcessedEvent(ctx, tx, event)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	query := `
		INSERT INTO payments (
			id, invoice_id, customer_id, subscription_id,
			amount_paid, currency, source_event_id, paid_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`
	_, err = tx.Exec(ctx, query,
		payment.ID,
		payment.InvoiceID,
		payment.CustomerID,
		payment.SubscriptionID,
		payment.AmountPaid,
		payment.Currency,
		payment.SourceEventID,
		payment.PaidAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ApplySubscriptionChange выполняет upsert подписки с учетом порядка событий
func (s *PostgresBillingStore) ApplySubscriptionChange(ctx context.Context, event domain.WebhookEvent, sub domain.Subscription) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := s.insertProcessedEvent(ctx, tx, event)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	applied, err := s.upsertSubscription(ctx, tx, sub)
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Warnw("Skipping stale subscription event",
			"subscriptionID", sub.SubscriptionID,
			"eventID", event.ID,
			"eventTime", event.Created)
	}

	// Журнал коммитится и для устаревшего события: оно обработано,
	// повторная доставка бессмысленна.
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return applied, nil
}

// HasProcessedEvent проверяет наличие события в журнале
func (s *PostgresBillingStore) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`
	if err := s.db.QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

// GetSubscription возвращает подписку по ID из базы данных
func (s *PostgresBillingStore) GetSubscription(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	query := `
		SELECT
			subscription_id, customer_id, plan_id, status,
			current_period_end, updated_by_event_id, source_event_time,
			created_at, updated_at
		FROM subscriptions
		WHERE subscription_id = $1
	`

	var sub domain.Subscription
	err := s.db.QueryRow(ctx, query, subscriptionID).Scan(
		&sub.SubscriptionID,
		&sub.CustomerID,
		&sub.PlanID,
		&sub.Status,
		&sub.CurrentPeriodEnd,
		&sub.UpdatedByEventID,
		&sub.SourceEventTime,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// GetSubscriptionsByCustomer возвращает подписки клиента из базы данных
func (s *PostgresBillingStore) GetSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	query := `
		SELECT
			subscription_id, customer_id, plan_id, status,
			current_period_end, updated_by_event_id, source_event_time,
			created_at, updated_at
		FROM subscriptions
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subscriptions []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.SubscriptionID,
			&sub.CustomerID,
			&sub.PlanID,
			&sub.Status,
			&sub.CurrentPeriodEnd,
			&sub.UpdatedByEventID,
			&sub.SourceEventTime,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subscriptions = append(subscriptions, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subscriptions, nil
}

// GetPaymentsByCustomer возвращает платежи клиента из базы данных
func (s *PostgresBillingStore) GetPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	query := `
		SELECT
			id, invoice_id, customer_id, subscription_id,
			amount_paid, currency, source_event_id, paid_at, created_at
		FROM payments
		WHERE customer_id = $1
		ORDER BY paid_at DESC
	`

	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		err := rows.Scan(
			&p.ID,
			&p.InvoiceID,
			&p.CustomerID,
			&p.SubscriptionID,
			&p.AmountPaid,
			&p.Currency,
			&p.SourceEventID,
			&p.PaidAt,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}
