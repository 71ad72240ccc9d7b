package device

import (
	"errors"

	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/services"
)

func (d *Device) supports(t services.SensorType) bool {
	for _, s := range d.cfg.Sensors {
		if s == t {
			return true
		}
	}
	return false
}

// HandleSensorEvent answers reads from the latest reading and records
// notify subscriptions per connection.
func (d *Device) HandleSensorEvent(ev *services.SensorEvent) protocol.ResultCode {
	if !d.supports(ev.Type) {
		return protocol.ResultNotSupport
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.Kind {
	case services.SensorEventGet:
		r, ok := d.readings[ev.Type]
		if !ok {
			return protocol.ResultNoData
		}
		ev.Value = r.Value
		ev.Original = r.Original
		return protocol.ResultOK
	case services.SensorEventSetNotify:
		switch ev.Status {
		case services.SensorStatusOn:
			subs := d.subs[ev.Conn]
			if subs == nil {
				subs = make(map[services.SensorType]*subscription)
				d.subs[ev.Conn] = subs
			}
			subs[ev.Type] = &subscription{thresholds: ev.Value}
		case services.SensorStatusOff:
			delete(d.subs[ev.Conn], ev.Type)
			if len(d.subs[ev.Conn]) == 0 {
				delete(d.subs, ev.Conn)
			}
		default:
			return protocol.ResultFailed
		}
		d.log.Debug().Uint16("conn", uint16(ev.Conn)).Stringer("sensor", ev.Type).Uint8("status", uint8(ev.Status)).Msg("device sensor notify")
		return protocol.ResultOK
	default:
		return protocol.ResultNotSupport
	}
}

// simulateLocked advances every configured sensor one step. Humidity walks
// 10..100 percent; temperature swings around 24 C.
func (d *Device) simulateLocked() {
	d.step = d.step%10 + 1
	now := d.now()
	for _, t := range d.cfg.Sensors {
		var r Reading
		switch t {
		case services.SensorTemperature:
			r.Original = EncodeTemperature(22 + float32(d.step)*0.5)
		case services.SensorHumidity:
			r.Original = EncodeHumidity(float32(d.step) * 10)
		default:
			s := uint32(d.step)
			r.Value = services.Vector{X: s, Y: 2 * s, Z: 3 * s}
		}
		r.Updated = now
		d.readings[t] = r
	}
}

// SetReading overrides the latest value of a sensor.
func (d *Device) SetReading(t services.SensorType, r Reading) error {
	if !d.supports(t) {
		return services.ErrInvalidSensor
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.Updated.IsZero() {
		r.Updated = d.now()
	}
	d.readings[t] = r
	return nil
}

type pushItem struct {
	conn protocol.ConnHandle
	t    services.SensorType
	r    Reading
}

// due reports whether a motion reading moved at least one threshold since
// the last push. Environment sensors are always due.
func (s *subscription) due(t services.SensorType, v services.Vector) bool {
	if !t.IsMotion() || !s.sent {
		return true
	}
	return exceeds(s.last.X, v.X, s.thresholds.X) ||
		exceeds(s.last.Y, v.Y, s.thresholds.Y) ||
		exceeds(s.last.Z, v.Z, s.thresholds.Z)
}

func exceeds(a, b, threshold uint32) bool {
	delta := a - b
	if b > a {
		delta = b - a
	}
	return delta >= threshold
}

// sensorKinds bounds the rotation over a connection's subscriptions.
const sensorKinds = services.SensorHumidity + 1

// push sends at most one reading per connection per tick. A successful send
// leaves the engine indicating, so each connection rotates through its due
// subscriptions starting after the last one delivered.
func (d *Device) push(engines Engines) {
	d.mu.Lock()
	items := make([]pushItem, 0, len(d.subs))
	for conn, subs := range d.subs {
		if it, ok := d.nextDueLocked(conn, subs); ok {
			items = append(items, it)
		}
	}
	d.mu.Unlock()

	for _, it := range items {
		e, err := engines.Lookup(it.conn)
		if err != nil {
			d.Forget(it.conn)
			continue
		}
		err = e.NotifySensor(it.t, it.r.Value, it.r.Original)
		switch {
		case err == nil:
			d.mu.Lock()
			if s := d.subs[it.conn][it.t]; s != nil {
				s.last = it.r.Value
				s.sent = true
			}
			d.cursor[it.conn] = it.t
			d.mu.Unlock()
		case errors.Is(err, link.ErrBusy):
			d.log.Debug().Uint16("conn", uint16(it.conn)).Stringer("sensor", it.t).Msg("device push skipped, link busy")
		default:
			d.log.Warn().Err(err).Uint16("conn", uint16(it.conn)).Stringer("sensor", it.t).Msg("device push failed")
		}
	}
}

func (d *Device) nextDueLocked(conn protocol.ConnHandle, subs map[services.SensorType]*subscription) (pushItem, bool) {
	first := services.SensorType(0)
	if last, ok := d.cursor[conn]; ok {
		first = last + 1
	}
	for i := services.SensorType(0); i < sensorKinds; i++ {
		t := (first + i) % sensorKinds
		s := subs[t]
		if s == nil {
			continue
		}
		r := d.readings[t]
		if s.due(t, r.Value) {
			return pushItem{conn: conn, t: t, r: r}, true
		}
	}
	return pushItem{}, false
}
