package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AlertLevel grades outbound notifications.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertError    AlertLevel = "ERROR"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alerter interface for sending notifications to external services
// Implementations: Slack, console, or a fan-out of several.
type Alerter interface {
	Alert(level AlertLevel, message string, metadata map[string]any)
}

// MultiAlerter sends alerts to multiple alerters
type MultiAlerter struct {
	alerters []Alerter
}

func NewMultiAlerter(alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{alerters: alerters}
}

func (m *MultiAlerter) Alert(level AlertLevel, message string, metadata map[string]any) {
	for _, alerter := range m.alerters {
		// Run in goroutine to avoid blocking the pipeline
		go alerter.Alert(level, message, metadata)
	}
}

// SlackAlerter sends alerts to Slack via webhook
type SlackAlerter struct {
	webhookURL string
	channel    string
	username   string
}

func NewSlackAlerter(webhookURL, channel, username string) *SlackAlerter {
	return &SlackAlerter{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
	}
}

func (s *SlackAlerter) Alert(level AlertLevel, message string, metadata map[string]any) {
	if s.webhookURL == "" {
		return // Not configured
	}

	fields := []map[string]any{}
	for k, v := range metadata {
		fields = append(fields, map[string]any{
			"title": k,
			"value": fmt.Sprintf("%v", v),
			"short": true,
		})
	}

	payload := map[string]any{
		"username": s.username,
		"channel":  s.channel,
		"text":     fmt.Sprintf("%s *%s Alert*", s.emoji(level), level),
		"attachments": []map[string]any{
			{
				"color":     s.color(level),
				"title":     message,
				"fields":    fields,
				"timestamp": time.Now().Unix(),
				"footer":    "Order Scout",
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	_, _ = client.Post(s.webhookURL, "application/json", bytes.NewBuffer(jsonPayload))
	// Ignore errors - alerting must never break the pipeline
}

func (s *SlackAlerter) color(level AlertLevel) string {
	switch level {
	case AlertCritical, AlertError:
		return "danger"
	case AlertWarning:
		return "warning"
	default:
		return "good"
	}
}

func (s *SlackAlerter) emoji(level AlertLevel) string {
	switch level {
	case AlertCritical:
		return ":rotating_light:"
	case AlertError:
		return ":x:"
	case AlertWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// ConsoleAlerter prints alerts to console (for development/testing)
type ConsoleAlerter struct{}

func NewConsoleAlerter() *ConsoleAlerter {
	return &ConsoleAlerter{}
}

func (c *ConsoleAlerter) Alert(level AlertLevel, message string, metadata map[string]any) {
	fmt.Printf("\nALERT [%s]: %s\n", level, message)
	if len(metadata) > 0 {
		fmt.Println("  Metadata:")
		for k, v := range metadata {
			fmt.Printf("    %s: %v\n", k, v)
		}
	}
	fmt.Println()
}
