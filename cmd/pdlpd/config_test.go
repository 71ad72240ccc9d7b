package main

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/pdlp/internal/config"
	"github.com/danmuck/pdlp/internal/device"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/danmuck/pdlp/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServiceConfig(writeConfig(t, `
addr = "127.0.0.1:9400"
cors_origins = [" http://a.test ", ""]
indication_timeout = "2s"
`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9400", cfg.Addr)
	require.Equal(t, []string{"http://a.test"}, cfg.CORSOrigins)
	require.Equal(t, 2*time.Second, cfg.IndicationTimeout)
	require.Zero(t, cfg.SensorInterval)
	require.Empty(t, cfg.DeviceProfile)

	cfg, err = loadServiceConfig("")
	require.NoError(t, err)
	require.Equal(t, defaultServiceConfig(), cfg)
}

func TestLoadServiceConfigRejectsBadDurations(t *testing.T) {
	testlog.Start(t)
	_, err := loadServiceConfig(writeConfig(t, `indication_timeout = "soon"`))
	require.ErrorContains(t, err, "indication_timeout")
	_, err = loadServiceConfig(writeConfig(t, `sensor_interval = "-1s"`))
	require.ErrorContains(t, err, "sensor_interval")
	_, err = loadServiceConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestDaemonTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.WriteTemplate(path, "pdlpd", false))
	cfg, err := loadServiceConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9300", cfg.Addr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 30*time.Second, cfg.IndicationTimeout)
}

func TestDeviceAppsFollowProfile(t *testing.T) {
	testlog.Start(t)
	profile := config.DefaultDeviceProfile()
	dev := device.New(device.Config{})
	svc, err := profile.ServicesConfig()
	require.NoError(t, err)
	apps := deviceApps(dev, profile, svc)
	require.NotNil(t, apps.Sensor)
	require.NotNil(t, apps.Notification)
	require.NotNil(t, apps.Setting)

	profile.Settings = config.SettingsConfig{}
	apps = deviceApps(dev, profile, services.Config{})
	require.Equal(t, services.Apps{}, apps)
}

func TestOriginChecker(t *testing.T) {
	testlog.Start(t)
	check := originChecker([]string{"http://a.test"})
	req := httptest.NewRequest("GET", "/link", nil)
	require.True(t, check(req))
	req.Header.Set("Origin", "http://a.test")
	require.True(t, check(req))
	req.Header.Set("Origin", "http://b.test")
	require.False(t, check(req))
}
