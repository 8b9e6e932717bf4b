package catalog

import "strings"

// DeviceCategory classifies a meter within a site. Sub-meters (hvac,
// lighting, plugs) are components of the general meter, not additions to it.
type DeviceCategory string

const (
	CategoryGeneral  DeviceCategory = "general"
	CategoryHVAC     DeviceCategory = "hvac"
	CategoryLighting DeviceCategory = "lighting"
	CategoryPlugs    DeviceCategory = "plugs"
	CategoryOther    DeviceCategory = "other"
)

// NormalizeCategory maps free-form category labels onto the known set.
// An empty label is the general meter.
func NormalizeCategory(s string) DeviceCategory {
	switch c := DeviceCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CategoryGeneral, "total", "main":
		return CategoryGeneral
	case CategoryHVAC, CategoryLighting, CategoryPlugs:
		return c
	default:
		return CategoryOther
	}
}

// IsGeneral reports whether c is the canonical total meter
func (c DeviceCategory) IsGeneral() bool {
	return NormalizeCategory(string(c)) == CategoryGeneral
}
