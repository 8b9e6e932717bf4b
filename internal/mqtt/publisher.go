package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iot-engine/internal/models"
)

// PublishClient is the part of the paho client the publisher needs
type PublishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher handles MQTT publishing from channels
type Publisher struct {
	client PublishClient
	logger *slog.Logger

	// Input channel (read by publisher, written by the alert service)
	AlertChan chan models.AlertEvent

	// Topic pattern
	alertTopic string // e.g., "alerts/{site_id}"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	AlertTopic string // e.g., "alerts/{site_id}"
}

// NewPublisher creates a new MQTT publisher reading from alertChan
func NewPublisher(client PublishClient, config PublisherConfig, alertChan chan models.AlertEvent, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:     client,
		logger:     logger.With("component", "mqtt_publisher"),
		AlertChan:  alertChan,
		alertTopic: config.AlertTopic,
	}
}

// Start begins publishing alert events from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("starting")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, shutting down")
			return

		case event, ok := <-p.AlertChan:
			if !ok {
				p.logger.Info("alert channel closed, shutting down")
				return
			}
			if err := p.publishAlert(event); err != nil {
				p.logger.Error("failed to publish alert", "site_id", event.SiteID, "error", err)
			}
		}
	}
}

// publishAlert publishes the alert state of a site as a retained message so
// late subscribers see the current state
func (p *Publisher) publishAlert(event models.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	topic := formatTopic(p.alertTopic, event.SiteID)

	token := p.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish alert event: %w", token.Error())
	}

	p.logger.Debug("published alert", "site_id", event.SiteID, "topic", topic,
		"critical", event.Alerts.CriticalCount, "warning", event.Alerts.WarningCount)
	return nil
}

// formatTopic replaces {site_id} placeholder with actual site ID
func formatTopic(topicPattern, siteID string) string {
	return strings.ReplaceAll(topicPattern, "{site_id}", siteID)
}
