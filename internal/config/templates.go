package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns the commented TOML template for kind ("device" or
// "pdlpd").
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "device":
		return deviceTemplate, nil
	case "pdlpd":
		return daemonTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// WriteTemplate writes the template for kind to path. An existing file is
// kept unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const deviceTemplate = `name = "pdlp-device"
device_id = 1
device_uid = 1
capabilities = ["accelerometer", "temperature"]
notify_categories = ["all", "incoming_call", "mail"]
sensors = ["accelerometer", "temperature"]

[link]
max_unit = 20
max_inbound_segments = 5
max_outbound_segments = 32

[settings]
led_colors = ["red", "green", "blue"]
led_patterns = ["steady", "blink"]
vibration_patterns = ["short", "long"]
notify_time = 10
`

const daemonTemplate = `addr = ":9300"
cors_origins = ["http://localhost:3000"]
device_profile = "cmd/pdlpd/device.toml"
indication_timeout = "30s"
sensor_interval = "0s"
log_level = "info"
`
