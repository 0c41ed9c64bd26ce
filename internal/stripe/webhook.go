package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbizhq/billing-service/internal/domain"
	"github.com/smallbizhq/billing-service/pkg/logger"

	"github.com/stripe/stripe-go/v78/webhook"
)

// SignatureHeader имя заголовка с подписью вебхука Stripe
const SignatureHeader = "Stripe-Signature"

// WebhookParser проверяет подпись и разбирает webhook-события от Stripe.
type WebhookParser struct {
	secret string
	log    *logger.Logger
}

// NewWebhookParser создает новый парсер вебхуков с секретом подписи.
func NewWebhookParser(secret string, log *logger.Logger) *WebhookParser {
	return &WebhookParser{
		secret: secret,
		log:    log,
	}
}

// ParseEvent проверяет подпись по исходным байтам тела и возвращает
// доменное событие. Подпись считается строго по raw payload: повторная
// сериализация распарсенного JSON ломает проверку из-за различий в
// пробелах и порядке ключей.
func (p *WebhookParser) ParseEvent(payload []byte, signatureHeader string) (domain.WebhookEvent, error) {
	if signatureHeader == "" {
		return domain.WebhookEvent{}, domain.NewSignatureError(fmt.Errorf("missing %s header", SignatureHeader))
	}
	if len(payload) == 0 {
		return domain.WebhookEvent{}, domain.NewSignatureError(fmt.Errorf("empty request body"))
	}

	// Версия API события зависит от настроек endpoint-а в Stripe и не обязана
	// совпадать с версией, закрепленной в SDK
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.log.Warnw("Webhook signature verification failed", "error", err)
		return domain.WebhookEvent{}, domain.NewSignatureError(err)
	}

	// Структурированное представление объекта события для диспатча.
	// Исходные байты сохраняются отдельно и из него не восстанавливаются.
	var object map[string]interface{}
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			p.log.Errorw("Failed to parse webhook event object", "eventID", event.ID, "error", err)
			return domain.WebhookEvent{}, fmt.Errorf("failed to parse event object: %w", err)
		}
	}

	parsed := domain.WebhookEvent{
		ID:         event.ID,
		Type:       domain.ParseEventType(string(event.Type)),
		RawType:    string(event.Type),
		Created:    time.Unix(event.Created, 0).UTC(),
		RawPayload: payload,
		Object:     object,
		ReceivedAt: time.Now().UTC(),
	}

	p.log.Debugw("Webhook event verified", "eventID", parsed.ID, "type", parsed.RawType)
	return parsed, nil
}
