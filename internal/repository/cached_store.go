package repository

import (
	"context"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"
)

// CachedBillingStore реализует BillingStore с кешированием чтений.
// Мутации делегируются основному хранилищу, после успешного применения
// соответствующие записи кеша инвалидируются. Ошибки кеша не фатальны:
// источником истины остается основное хранилище.
type CachedBillingStore struct {
	store BillingStore
	cache *RedisCache
	log   *logger.Logger
}

// NewCachedBillingStore создает новое хранилище с кешированием
func NewCachedBillingStore(store BillingStore, cache *RedisCache, log *logger.Logger) BillingStore {
	return &CachedBillingStore{
		store: store,
		cache: cache,
		log:   log,
	}
}

// invalidateSubscription сбрасывает кеш подписки и списка подписок клиента
func (r *CachedBillingStore) invalidateSubscription(ctx context.Context, subscriptionID, customerID string) {
	if subscriptionID != "" {
		if err := r.cache.DeleteCachedSubscription(ctx, subscriptionID); err != nil {
			r.log.Warnw("Failed to invalidate subscription cache", "error", err, "subscriptionID", subscriptionID)
		}
	}
	if customerID != "" {
		if err := r.cache.InvalidateCustomerSubscriptionsCache(ctx, customerID); err != nil {
			r.log.Warnw("Failed to invalidate customer subscriptions cache", "error", err, "customerID", customerID)
		}
	}
}

// ApplyCheckoutCompleted делегирует мутацию и инвалидирует кеш
func (r *CachedBillingStore) ApplyCheckoutCompleted(ctx context.Context, event domain.WebhookEvent, intent domain.CheckoutIntent) (bool, error) {
	applied, err := r.store.ApplyCheckoutCompleted(ctx, event, intent)
	if err != nil {
		return applied, err
	}
	if applied {
		r.invalidateSubscription(ctx, intent.SubscriptionID, intent.CustomerID)
	}
	return applied, nil
}

// ApplyInvoicePaid делегирует мутацию основному хранилищу
func (r *CachedBillingStore) ApplyInvoicePaid(ctx context.Context, event domain.WebhookEvent, payment domain.Payment) (bool, error) {
	// Платежи не кешируются, инвалидация не нужна
	return r.store.ApplyInvoicePaid(ctx, event, payment)
}

// ApplySubscriptionChange делегирует мутацию и инвалидирует кеш
func (r *CachedBillingStore) ApplySubscriptionChange(ctx context.Context, event domain.WebhookEvent, sub domain.Subscription) (bool, error) {
	applied, err := r.store.ApplySubscriptionChange(ctx, event, sub)
	if err != nil {
		return applied, err
	}
	if applied {
		r.invalidateSubscription(ctx, sub.SubscriptionID, sub.CustomerID)
	}
	return applied, nil
}

// HasProcessedEvent проверяет журнал в основном хранилище
func (r *CachedBillingStore) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	return r.store.HasProcessedEvent(ctx, eventID)
}

// GetSubscription получает подписку сначала из кеша, потом из хранилища
func (r *CachedBillingStore) GetSubscription(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	cached, err := r.cache.GetCachedSubscription(ctx, subscriptionID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "subscriptionID", subscriptionID)
	}
	if cached != nil {
		r.log.Debugw("Subscription found in cache", "subscriptionID", subscriptionID)
		return *cached, nil
	}

	sub, err := r.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}

	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "subscriptionID", subscriptionID)
	}

	return sub, nil
}

// GetSubscriptionsByCustomer получает подписки клиента с кешированием списка
func (r *CachedBillingStore) GetSubscriptionsByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	cached, err := r.cache.GetCachedCustomerSubscriptions(ctx, customerID)
	if err != nil {
		r.log.Warnw("Error getting customer subscriptions from cache", "error", err, "customerID", customerID)
	}
	if len(cached) > 0 {
		r.log.Debugw("Customer subscriptions found in cache", "customerID", customerID, "count", len(cached))
		return cached, nil
	}

	subs, err := r.store.GetSubscriptionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if len(subs) > 0 {
		if err := r.cache.CacheCustomerSubscriptions(ctx, customerID, subs); err != nil {
			r.log.Warnw("Failed to cache customer subscriptions", "error", err, "customerID", customerID)
		}
	}

	return subs, nil
}

// GetPaymentsByCustomer читает платежи напрямую из хранилища
func (r *CachedBillingStore) GetPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	return r.store.GetPaymentsByCustomer(ctx, customerID)
}
