package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/danmuck/pdlp/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDeviceTemplateMatchesDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, WriteTemplate(path, "device", false))
	require.Error(t, WriteTemplate(path, "device", false))

	cfg, err := LoadDeviceProfile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultDeviceProfile(), cfg)
	require.NoError(t, ValidateDeviceProfile(DefaultDeviceProfile()))
	require.Equal(t, link.DefaultLimits(), cfg.Limits())
}

func TestLoadDeviceProfileResolvesNames(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
device_id = 4660
device_uid = 3405691582
capabilities = ["Gyroscope", " humidity "]
notify_categories = ["mail", "schedule"]
sensors = ["gyroscope", "humidity"]
`)
	cfg, err := LoadDeviceProfile(path)
	require.NoError(t, err)
	require.Equal(t, "pdlp-device", cfg.Name)
	require.Equal(t, link.DefaultLimits(), cfg.Limits())

	svc, err := cfg.ServicesConfig()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), svc.DeviceID)
	require.Equal(t, uint32(0xCAFEBABE), svc.DeviceUID)
	require.Equal(t, schema.CapabilityGyroscope|schema.CapabilityHumidity, svc.Capability)
	require.Equal(t, schema.CategoryMail|schema.CategorySchedule, svc.NotifyCategory)
	require.Equal(t, services.SensorGyroscope.Bit()|services.SensorHumidity.Bit(), svc.SensorTypes)
	require.Equal(t, []services.SensorType{services.SensorGyroscope, services.SensorHumidity}, cfg.SensorTypes())
}

func TestLoadDeviceProfileRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"capability": `capabilities = ["laser"]`,
		"category":   `notify_categories = ["pager"]`,
		"sensor":     `sensors = ["sonar"]`,
		"limits":     "[link]\nmax_outbound_segments = 40\n",
		"overflow":   `device_id = 70000`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDeviceProfile(writeFile(t, body))
			require.Error(t, err)
		})
	}
	_, err := LoadDeviceProfile(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, err, "config load failed")
}

func TestTemplateUnknownKind(t *testing.T) {
	testlog.Start(t)
	_, err := Template("ghost")
	require.Error(t, err)
	body, err := Template("PDLPD")
	require.NoError(t, err)
	require.Contains(t, body, "device_profile")
}
