package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unionhall/integration-hub/models"
)

// ExtractEventType pulls a normalized event type out of a provider's
// webhook payload. Every provider shapes its payload differently; an
// empty type with a nil error means the payload parsed fine but does
// not carry an event kind we act on.
func ExtractEventType(provider models.Provider, payload []byte) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("parsing %s webhook payload: %w", provider, err)
	}

	switch provider {
	case models.ProviderSlack:
		return slackEventType(doc), nil
	case models.ProviderQuickBooks:
		return quickbooksEventType(doc), nil
	case models.ProviderWorkday, models.ProviderSunLife:
		return stringField(doc, "eventType"), nil
	default:
		// unrecognized providers fall back to the common field names
		for _, key := range []string{"type", "event", "eventType"} {
			if v := stringField(doc, key); v != "" {
				return v, nil
			}
		}

		return "", nil
	}
}

// slackEventType handles both the outer envelope (url_verification,
// app_rate_limited) and the inner event of event_callback deliveries.
func slackEventType(doc map[string]any) string {
	outer := stringField(doc, "type")
	if outer != "event_callback" {
		return outer
	}

	if inner, ok := doc["event"].(map[string]any); ok {
		return stringField(inner, "type")
	}

	return outer
}

// quickbooksEventType reads the first entry of eventNotifications:
// either a flat name, or the first dataChangeEvent entity rendered as
// "Entity.operation" (e.g. "Invoice.update").
func quickbooksEventType(doc map[string]any) string {
	notifications, ok := doc["eventNotifications"].([]any)
	if !ok || len(notifications) == 0 {
		return ""
	}

	first, ok := notifications[0].(map[string]any)
	if !ok {
		return ""
	}

	if name := stringField(first, "name"); name != "" {
		return name
	}

	change, ok := first["dataChangeEvent"].(map[string]any)
	if !ok {
		return ""
	}

	entities, ok := change["entities"].([]any)
	if !ok || len(entities) == 0 {
		return ""
	}

	entity, ok := entities[0].(map[string]any)
	if !ok {
		return ""
	}

	name := stringField(entity, "name")
	op := stringField(entity, "operation")

	if name == "" {
		return ""
	}

	if op == "" {
		return name
	}

	return name + "." + strings.ToLower(op)
}

func stringField(doc map[string]any, key string) string {
	v, _ := doc[key].(string)
	return v
}
