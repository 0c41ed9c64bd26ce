package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	subscriptionKeyPrefix          = "subscription:"
	customerSubscriptionsKeyPrefix = "customer_subscriptions:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCache реализует кеширование чтений хранилища с использованием Redis
type RedisCache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCache создает новый экземпляр Redis кеша
func NewRedisCache(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCache{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// CacheSubscription кеширует подписку в Redis
func (r *RedisCache) CacheSubscription(ctx context.Context, sub domain.Subscription) error {
	key := subscriptionKeyPrefix + sub.SubscriptionID

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached", "subscriptionID", sub.SubscriptionID)
	return nil
}

// GetCachedSubscription получает подписку из кеша.
// Возвращает nil без ошибки при промахе кеша.
func (r *RedisCache) GetCachedSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	key := subscriptionKeyPrefix + subscriptionID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	return &sub, nil
}

// DeleteCachedSubscription удаляет подписку из кеша
func (r *RedisCache) DeleteCachedSubscription(ctx context.Context, subscriptionID string) error {
	key := subscriptionKeyPrefix + subscriptionID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription from cache: %w", err)
	}
	return nil
}

// CacheCustomerSubscriptions кеширует список подписок клиента
func (r *RedisCache) CacheCustomerSubscriptions(ctx context.Context, customerID string, subs []domain.Subscription) error {
	key := customerSubscriptionsKeyPrefix + customerID

	data, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal customer subscriptions: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache customer subscriptions: %w", err)
	}

	r.log.Debugw("Customer subscriptions cached", "customerID", customerID, "count", len(subs))
	return nil
}

// GetCachedCustomerSubscriptions получает список подписок клиента из кеша.
// Возвращает nil без ошибки при промахе кеша.
func (r *RedisCache) GetCachedCustomerSubscriptions(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	key := customerSubscriptionsKeyPrefix + customerID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer subscriptions from cache: %w", err)
	}

	var subs []domain.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached customer subscriptions: %w", err)
	}

	return subs, nil
}

// InvalidateCustomerSubscriptionsCache удаляет кеш подписок клиента
func (r *RedisCache) InvalidateCustomerSubscriptionsCache(ctx context.Context, customerID string) error {
	key := customerSubscriptionsKeyPrefix + customerID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate customer subscriptions cache: %w", err)
	}
	return nil
}
