package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/danmuck/pdlp/internal/config"
	"github.com/danmuck/pdlp/internal/device"
	"github.com/danmuck/pdlp/internal/gateway"
	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/logging"
	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/danmuck/pdlp/internal/transport/wslink"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

func run(ctx context.Context, path string) error {
	logger := observability.InitLogger("pdlpd")

	cfg, err := loadServiceConfig(path)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		lvl, ok := logging.ParseLevel(cfg.LogLevel)
		if !ok {
			return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
		}
		zerolog.SetGlobalLevel(lvl)
	}

	profile := config.DefaultDeviceProfile()
	if cfg.DeviceProfile != "" {
		if profile, err = config.LoadDeviceProfile(cfg.DeviceProfile); err != nil {
			return err
		}
	}
	svcCfg, err := profile.ServicesConfig()
	if err != nil {
		return err
	}

	dev := device.New(device.Config{
		Sensors:           profile.SensorTypes(),
		LEDColors:         profile.Settings.LEDColors,
		LEDPatterns:       profile.Settings.LEDPatterns,
		VibrationPatterns: profile.Settings.VibrationPatterns,
		NotifyTime:        profile.Settings.NotifyTime,
		Interval:          cfg.SensorInterval,
	})
	apps := deviceApps(dev, profile, svcCfg)
	router := services.NewDeviceRouter(svcCfg, apps)

	hub := wslink.NewHub(wslink.Options{
		IndicationTimeout: cfg.IndicationTimeout,
		WriteTimeout:      writeTimeout,
		CheckOrigin:       originChecker(cfg.CORSOrigins),
	})
	arena, err := link.NewArena(link.Config{
		Limits:    profile.Limits(),
		Router:    router,
		Transport: hub,
	})
	if err != nil {
		return err
	}
	hub.Bind(arena)

	gw := gateway.New(gateway.Options{
		ID:          profile.Name,
		Addr:        cfg.Addr,
		CORSOrigins: cfg.CORSOrigins,
		Arena:       arena,
		Link:        hub,
		Device:      dev,
	})

	logger.Info().
		Str("device", profile.Name).
		Str("addr", cfg.Addr).
		Uint8("services", apps.ServiceList()).
		Dur("indication_timeout", cfg.IndicationTimeout).
		Msg("pdlpd starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	devErr := make(chan error, 1)
	go func() {
		devErr <- dev.Run(ctx, arena)
	}()

	err = gw.Serve(ctx)
	cancel()
	hub.Close()
	if derr := <-devErr; derr != nil && !errors.Is(derr, context.Canceled) {
		err = errors.Join(err, derr)
	}
	logger.Info().Msg("pdlpd stopped")
	return err
}

// deviceApps enables the application services the profile gives content to.
func deviceApps(dev *device.Device, profile config.DeviceProfile, cfg services.Config) services.Apps {
	var apps services.Apps
	if cfg.SensorTypes != 0 {
		apps.Sensor = dev
	}
	if cfg.NotifyCategory != 0 {
		apps.Notification = dev
	}
	s := profile.Settings
	if len(s.LEDColors)+len(s.LEDPatterns)+len(s.VibrationPatterns) > 0 {
		apps.Setting = dev
	}
	return apps
}

// originChecker admits clients without an Origin header and browsers from
// the configured origins.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

var (
	_ link.Transport = (*wslink.Hub)(nil)
	_ wslink.Link    = (*link.Arena)(nil)
)
