package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// Subscriber handles telemetry subscriptions and writes samples to a channel
type Subscriber struct {
	client mqtt.Client
	logger *slog.Logger

	// Output channel (written by subscriber, read by the ingest service)
	SampleChan chan models.MetricSample

	// Topic pattern, e.g. "telemetry/+/+/+"
	telemetryTopic string
	sendTimeout    time.Duration
	now            func() time.Time
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	TelemetryTopic string // e.g., "telemetry/+/+/+"
}

// NewSubscriber creates a new MQTT subscriber writing to sampleChan
func NewSubscriber(client mqtt.Client, config SubscriberConfig, sampleChan chan models.MetricSample, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:         client,
		logger:         logger.With("component", "mqtt_subscriber"),
		SampleChan:     sampleChan,
		telemetryTopic: config.TelemetryTopic,
		sendTimeout:    time.Second,
		now:            time.Now,
	}
}

// SubscribeAll subscribes to the telemetry topic
func (s *Subscriber) SubscribeAll() error {
	if s.telemetryTopic == "" {
		return errors.New("no telemetry topic configured")
	}
	token := s.client.Subscribe(s.telemetryTopic, 1, s.handleTelemetry)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", token.Error())
	}
	s.logger.Info("subscribed", "topic", s.telemetryTopic)
	return nil
}

// handleTelemetry parses a telemetry message and writes its samples to the channel
func (s *Subscriber) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	samples, err := ParseTelemetry(msg.Topic(), msg.Payload(), s.now())
	if err != nil {
		s.logger.Warn("dropping telemetry message", "topic", msg.Topic(), "error", err)
		return
	}
	for _, sample := range samples {
		s.send(sample)
	}
}

func (s *Subscriber) send(sample models.MetricSample) {
	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.SampleChan <- sample:
	case <-timer.C:
		s.logger.Warn("sample channel full, dropping sample",
			"site_id", sample.SiteID, "device_id", sample.DeviceID, "metric", sample.Key.String())
	}
}

// telemetryPayload is one reading on the wire. A message carries a single
// reading object or an array of them.
type telemetryPayload struct {
	Key       string   `json:"key"`
	Value     *float64 `json:"value"`
	Unit      string   `json:"unit"`
	Timestamp string   `json:"timestamp"`
}

// TopicAddress is the site, device and category encoded in a telemetry topic
type TopicAddress struct {
	SiteID   string
	DeviceID string
	Category catalog.DeviceCategory
}

// ParseTopic extracts the address of telemetry/{site_id}/{device_id}/{category}.
// The category segment is optional and defaults to the general meter.
func ParseTopic(topic string) (TopicAddress, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || len(parts) > 4 || parts[1] == "" || parts[2] == "" {
		return TopicAddress{}, fmt.Errorf("unexpected telemetry topic %q", topic)
	}
	addr := TopicAddress{SiteID: parts[1], DeviceID: parts[2], Category: catalog.CategoryGeneral}
	if len(parts) == 4 {
		addr.Category = catalog.NormalizeCategory(parts[3])
	}
	return addr, nil
}

// ParseTelemetry turns a telemetry message into samples. Readings with an
// unknown key or without a value are skipped; a missing or malformed
// timestamp becomes now.
func ParseTelemetry(topic string, payload []byte, now time.Time) ([]models.MetricSample, error) {
	addr, err := ParseTopic(topic)
	if err != nil {
		return nil, err
	}

	var readings []telemetryPayload
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &readings)
	} else {
		var single telemetryPayload
		err = json.Unmarshal(trimmed, &single)
		readings = []telemetryPayload{single}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry: %w", err)
	}

	samples := make([]models.MetricSample, 0, len(readings))
	var skipped []string
	for _, r := range readings {
		key, err := catalog.ParseKey(r.Key)
		if err != nil || r.Value == nil {
			skipped = append(skipped, r.Key)
			continue
		}
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			ts = now
		}
		unit := r.Unit
		if unit == "" {
			unit = key.Unit()
		}
		samples = append(samples, models.MetricSample{
			Key:        key,
			Value:      *r.Value,
			Unit:       unit,
			SiteID:     addr.SiteID,
			DeviceID:   addr.DeviceID,
			Category:   addr.Category,
			SampleTime: ts,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no usable readings (skipped %v)", skipped)
	}
	return samples, nil
}
