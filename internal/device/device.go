// Package device is a simulated peripheral application. It answers sensor,
// notification and setting events from the link and pushes sensor readings
// to subscribed connections.
package device

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistory = 32
	jobQueue       = 16
	busyRetries    = 3
	busyBackoff    = 20 * time.Millisecond
)

// Engines resolves the engine serving a connection.
type Engines interface {
	Lookup(conn protocol.ConnHandle) (*link.Engine, error)
}

// Config describes the simulated hardware.
type Config struct {
	Sensors           []services.SensorType
	LEDColors         []string
	LEDPatterns       []string
	VibrationPatterns []string
	NotifyTime        uint8
	// Interval between simulated readings. Zero disables pushes.
	Interval time.Duration
	// History bounds the notification log.
	History int
}

// Reading is the latest value of one sensor. Motion sensors use Value,
// environment sensors Original.
type Reading struct {
	Value    services.Vector `json:"value"`
	Original uint16          `json:"original"`
	Updated  time.Time       `json:"updated"`
}

type NotificationRecord struct {
	Conn             protocol.ConnHandle      `json:"conn"`
	Category         uint16                   `json:"category"`
	UniqueID         uint16                   `json:"unique_id"`
	ParameterIDList  uint16                   `json:"parameter_id_list"`
	Rumbling         services.RumblingSetting `json:"rumbling"`
	HasRumbling      bool                     `json:"has_rumbling"`
	VibrationPattern []byte                   `json:"vibration_pattern,omitempty"`
	LEDPattern       []byte                   `json:"led_pattern,omitempty"`
	Details          map[uint8][]byte         `json:"details,omitempty"`
	Received         time.Time                `json:"received"`
}

type Subscription struct {
	Conn       protocol.ConnHandle `json:"conn"`
	Sensor     string              `json:"sensor"`
	Thresholds services.Vector     `json:"thresholds"`
}

// State is a copy of the device's observable state.
type State struct {
	LED           services.LEDSetting      `json:"led"`
	Vibrator      services.VibratorSetting `json:"vibrator"`
	NotifyTime    uint8                    `json:"notify_time"`
	Demo          bool                     `json:"demo"`
	Readings      map[string]Reading       `json:"readings"`
	Subscriptions []Subscription           `json:"subscriptions"`
	Notifications []NotificationRecord     `json:"notifications"`
	LastStart     *protocol.ResultCode     `json:"last_start_result,omitempty"`
}

type subscription struct {
	thresholds services.Vector
	last       services.Vector
	sent       bool
}

type job struct {
	conn protocol.ConnHandle
	ev   services.SettingEvent
}

// Device implements services.SensorApp, services.NotificationApp and
// services.SettingApp. Setting requests are answered from Run.
type Device struct {
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time
	jobs chan job

	mu            sync.Mutex
	led           services.LEDSetting
	vibrator      services.VibratorSetting
	notifyTime    uint8
	demo          bool
	step          int
	readings      map[services.SensorType]Reading
	subs          map[protocol.ConnHandle]map[services.SensorType]*subscription
	cursor        map[protocol.ConnHandle]services.SensorType
	notifications []NotificationRecord
	lastStart     *protocol.ResultCode
}

var (
	_ services.SensorApp       = (*Device)(nil)
	_ services.NotificationApp = (*Device)(nil)
	_ services.SettingApp      = (*Device)(nil)
)

// New builds a device with one simulated reading per sensor.
func New(cfg Config) *Device {
	if cfg.History <= 0 {
		cfg.History = defaultHistory
	}
	d := &Device{
		cfg:        cfg,
		log:        log.With().Str("component", "device").Logger(),
		now:        time.Now,
		jobs:       make(chan job, jobQueue),
		notifyTime: cfg.NotifyTime,
		led: services.LEDSetting{
			ColorNum:   uint8(len(cfg.LEDColors)),
			PatternNum: uint8(len(cfg.LEDPatterns)),
		},
		vibrator: services.VibratorSetting{
			PatternNum: uint8(len(cfg.VibrationPatterns)),
		},
		readings: make(map[services.SensorType]Reading),
		subs:     make(map[protocol.ConnHandle]map[services.SensorType]*subscription),
		cursor:   make(map[protocol.ConnHandle]services.SensorType),
	}
	d.simulateLocked()
	return d
}

// Apps wires the device into every application slot.
func (d *Device) Apps() services.Apps {
	return services.Apps{Sensor: d, Notification: d, Setting: d}
}

// Run answers setting requests and pushes readings until ctx ends.
func (d *Device) Run(ctx context.Context, engines Engines) error {
	var tick <-chan time.Time
	if d.cfg.Interval > 0 {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	d.log.Info().Dur("interval", d.cfg.Interval).Msg("device running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-d.jobs:
			d.answer(ctx, engines, j)
		case <-tick:
			d.mu.Lock()
			d.simulateLocked()
			d.mu.Unlock()
			d.push(engines)
		}
	}
}

// retryBusy repeats fn while the engine is mid-transaction.
func retryBusy(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		if err = fn(); !errors.Is(err, link.ErrBusy) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyBackoff):
		}
	}
	return err
}

// State returns a deep copy of the device state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := State{
		LED:           d.led,
		Vibrator:      d.vibrator,
		NotifyTime:    d.notifyTime,
		Demo:          d.demo,
		Readings:      make(map[string]Reading, len(d.readings)),
		Subscriptions: []Subscription{},
		Notifications: make([]NotificationRecord, len(d.notifications)),
	}
	for t, r := range d.readings {
		st.Readings[t.String()] = r
	}
	for conn, subs := range d.subs {
		for t, s := range subs {
			st.Subscriptions = append(st.Subscriptions, Subscription{Conn: conn, Sensor: t.String(), Thresholds: s.thresholds})
		}
	}
	sort.Slice(st.Subscriptions, func(i, j int) bool {
		a, b := st.Subscriptions[i], st.Subscriptions[j]
		if a.Conn != b.Conn {
			return a.Conn < b.Conn
		}
		return a.Sensor < b.Sensor
	})
	for i, rec := range d.notifications {
		st.Notifications[i] = cloneRecord(rec)
	}
	if d.lastStart != nil {
		v := *d.lastStart
		st.LastStart = &v
	}
	return st
}

// Forget drops subscriptions of a closed connection.
func (d *Device) Forget(conn protocol.ConnHandle) {
	d.mu.Lock()
	delete(d.subs, conn)
	delete(d.cursor, conn)
	d.mu.Unlock()
}

func cloneRecord(rec NotificationRecord) NotificationRecord {
	rec.VibrationPattern = cloneBytes(rec.VibrationPattern)
	rec.LEDPattern = cloneBytes(rec.LEDPattern)
	if rec.Details != nil {
		details := make(map[uint8][]byte, len(rec.Details))
		for k, v := range rec.Details {
			details[k] = cloneBytes(v)
		}
		rec.Details = details
	}
	return rec
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
