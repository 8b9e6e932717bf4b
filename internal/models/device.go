package models

import (
	"time"

	"iot-engine/internal/catalog"
)

// Device represents a metering device attached to a site
type Device struct {
	DeviceID     string                 `json:"device_id"`
	SiteID       string                 `json:"site_id"`
	Category     catalog.DeviceCategory `json:"category"`
	RegisteredAt time.Time              `json:"registered_at"`
	LastSeen     time.Time              `json:"last_seen"`
}
