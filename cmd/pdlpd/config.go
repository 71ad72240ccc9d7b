package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Addr              string   `toml:"addr"`
	CORSOrigins       []string `toml:"cors_origins"`
	DeviceProfile     string   `toml:"device_profile"`
	IndicationTimeout string   `toml:"indication_timeout"`
	SensorInterval    string   `toml:"sensor_interval"`
	LogLevel          string   `toml:"log_level"`
}

type serviceConfig struct {
	Addr              string
	CORSOrigins       []string
	DeviceProfile     string
	IndicationTimeout time.Duration
	SensorInterval    time.Duration
	LogLevel          string
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		Addr:              ":9300",
		CORSOrigins:       []string{"http://localhost:3000"},
		IndicationTimeout: 30 * time.Second,
	}
}

// loadServiceConfig applies the keys present in path over the defaults. An
// empty path keeps the defaults.
func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load pdlpd config: %w", err)
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}

	if meta.IsDefined("device_profile") {
		cfg.DeviceProfile = strings.TrimSpace(raw.DeviceProfile)
	}

	if meta.IsDefined("indication_timeout") {
		d, err := parseDuration("indication_timeout", raw.IndicationTimeout)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.IndicationTimeout = d
	}

	if meta.IsDefined("sensor_interval") {
		d, err := parseDuration("sensor_interval", raw.SensorInterval)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.SensorInterval = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", key, d)
	}
	return d, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
