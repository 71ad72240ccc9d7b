package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/pelletier/go-toml/v2"
)

// DeviceProfile describes the identity and capabilities a device advertises
// over the link.
type DeviceProfile struct {
	Name         string         `toml:"name"`
	DeviceID     uint16         `toml:"device_id"`
	DeviceUID    uint32         `toml:"device_uid"`
	Capabilities []string       `toml:"capabilities"`
	Categories   []string       `toml:"notify_categories"`
	Sensors      []string       `toml:"sensors"`
	Link         LinkConfig     `toml:"link"`
	Settings     SettingsConfig `toml:"settings"`
}

// LinkConfig sizes the per-connection engine buffers. Zero fields take the
// link defaults.
type LinkConfig struct {
	MaxUnit             int `toml:"max_unit"`
	MaxInboundSegments  int `toml:"max_inbound_segments"`
	MaxOutboundSegments int `toml:"max_outbound_segments"`
}

// SettingsConfig names the indicator choices reported by the setting
// operation service.
type SettingsConfig struct {
	LEDColors         []string `toml:"led_colors"`
	LEDPatterns       []string `toml:"led_patterns"`
	VibrationPatterns []string `toml:"vibration_patterns"`
	NotifyTime        uint8    `toml:"notify_time"`
}

var capabilityNames = map[string]uint8{
	"none":          schema.CapabilityNone,
	"gyroscope":     schema.CapabilityGyroscope,
	"accelerometer": schema.CapabilityAccelerator,
	"orientation":   schema.CapabilityOrientation,
	"battery":       schema.CapabilityBattery,
	"temperature":   schema.CapabilityTemperature,
	"humidity":      schema.CapabilityHumidity,
}

var categoryNames = map[string]uint16{
	"not_notify":    schema.CategoryNotNotify,
	"all":           schema.CategoryAll,
	"incoming_call": schema.CategoryPhoneIncomingCall,
	"in_call":       schema.CategoryPhoneInCall,
	"idle":          schema.CategoryPhoneIdle,
	"mail":          schema.CategoryMail,
	"schedule":      schema.CategorySchedule,
	"general":       schema.CategoryGeneral,
	"etc":           schema.CategoryEtc,
}

// DefaultDeviceProfile mirrors the device template.
func DefaultDeviceProfile() DeviceProfile {
	return DeviceProfile{
		Name:         "pdlp-device",
		DeviceID:     0x0001,
		DeviceUID:    0x00000001,
		Capabilities: []string{"accelerometer", "temperature"},
		Categories:   []string{"all", "incoming_call", "mail"},
		Sensors:      []string{"accelerometer", "temperature"},
		Link:         defaultLinkConfig(),
		Settings: SettingsConfig{
			LEDColors:         []string{"red", "green", "blue"},
			LEDPatterns:       []string{"steady", "blink"},
			VibrationPatterns: []string{"short", "long"},
			NotifyTime:        services.NotifyTime10Sec,
		},
	}
}

// LoadDeviceProfile reads, defaults and validates a device profile.
func LoadDeviceProfile(path string) (DeviceProfile, error) {
	var cfg DeviceProfile
	if err := loadToml(path, &cfg); err != nil {
		return DeviceProfile{}, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "pdlp-device"
	}
	applyLinkDefaults(&cfg.Link)
	if err := ValidateDeviceProfile(cfg); err != nil {
		return DeviceProfile{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func defaultLinkConfig() LinkConfig {
	def := link.DefaultLimits()
	return LinkConfig{
		MaxUnit:             def.MaxUnit,
		MaxInboundSegments:  def.MaxInboundSegments,
		MaxOutboundSegments: def.MaxOutboundSegments,
	}
}

func applyLinkDefaults(l *LinkConfig) {
	def := defaultLinkConfig()
	if l.MaxUnit == 0 {
		l.MaxUnit = def.MaxUnit
	}
	if l.MaxInboundSegments == 0 {
		l.MaxInboundSegments = def.MaxInboundSegments
	}
	if l.MaxOutboundSegments == 0 {
		l.MaxOutboundSegments = def.MaxOutboundSegments
	}
}

// ValidateDeviceProfile checks names, ranges and link limits.
func ValidateDeviceProfile(cfg DeviceProfile) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("device profile missing name")
	}
	if _, err := cfg.ServicesConfig(); err != nil {
		return err
	}
	if err := cfg.Limits().Validate(); err != nil {
		return fmt.Errorf("device profile link: %w", err)
	}
	if len(cfg.Settings.LEDColors) > 0xFF || len(cfg.Settings.LEDPatterns) > 0xFF || len(cfg.Settings.VibrationPatterns) > 0xFF {
		return fmt.Errorf("device profile settings: at most 255 names per list")
	}
	return nil
}

// ServicesConfig resolves the named capabilities, categories and sensors.
// The service list is left for the router to derive.
func (p DeviceProfile) ServicesConfig() (services.Config, error) {
	cfg := services.Config{DeviceID: p.DeviceID, DeviceUID: p.DeviceUID}
	for _, name := range p.Capabilities {
		bit, ok := capabilityNames[normalize(name)]
		if !ok {
			return services.Config{}, fmt.Errorf("unknown capability: %s", name)
		}
		cfg.Capability |= bit
	}
	for _, name := range p.Categories {
		bit, ok := categoryNames[normalize(name)]
		if !ok {
			return services.Config{}, fmt.Errorf("unknown notify category: %s", name)
		}
		cfg.NotifyCategory |= bit
	}
	for _, name := range p.Sensors {
		t, err := services.ParseSensorType(normalize(name))
		if err != nil {
			return services.Config{}, err
		}
		cfg.SensorTypes |= t.Bit()
	}
	return cfg, nil
}

// Limits converts the link section into engine limits.
func (p DeviceProfile) Limits() link.Limits {
	return link.Limits{
		MaxUnit:             p.Link.MaxUnit,
		MaxInboundSegments:  p.Link.MaxInboundSegments,
		MaxOutboundSegments: p.Link.MaxOutboundSegments,
	}
}

// SensorTypes returns the configured sensors in file order.
func (p DeviceProfile) SensorTypes() []services.SensorType {
	out := make([]services.SensorType, 0, len(p.Sensors))
	for _, name := range p.Sensors {
		if t, err := services.ParseSensorType(normalize(name)); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
