package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Function:* %s", event.Function)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Details:* %s", event.Details)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*File:* %s", event.Filename)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*IP:* %s", event.IP)},
	}
	if event.Token != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Matched:* `%s`", event.Token)})
	}
	if event.Error != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Error:* %s", event.Error)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("raspguard: %s", event.Event),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("raspguard %s: %s", event.Event, summaryFor(event)),
			"severity": severityFor(event.Event),
			"source":   "raspguard",
			"custom_details": map[string]any{
				"function": event.Function,
				"details":  event.Details,
				"token":    event.Token,
				"filename": event.Filename,
				"ip":       event.IP,
				"error":    event.Error,
			},
		},
	}
	return json.Marshal(payload)
}

func summaryFor(event AlertEvent) string {
	if event.Details != "" {
		return event.Details
	}
	return event.Function
}

func severityFor(event string) string {
	switch event {
	case EventBlocked:
		return "critical"
	case EventHookFailure:
		return "error"
	case EventSinkFailure:
		return "warning"
	default:
		return "info"
	}
}
