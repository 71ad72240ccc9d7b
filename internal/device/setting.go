package device

import (
	"context"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/services"
)

// HandleSettingEvent validates the request and queues its answer for Run.
// Selections are applied immediately.
func (d *Device) HandleSettingEvent(ev *services.SettingEvent) protocol.ResultCode {
	switch ev.Kind {
	case services.SettingEventGetInfo:
	case services.SettingEventGetName:
		switch ev.NameType {
		case services.SettingNameLEDColor, services.SettingNameLEDPattern, services.SettingNameVibrationPattern:
		default:
			return protocol.ResultNotSupport
		}
	case services.SettingEventSelectInfo:
		if code := d.selectSetting(ev); code != protocol.ResultOK {
			return code
		}
	default:
		return protocol.ResultNotSupport
	}
	select {
	case d.jobs <- job{conn: ev.Conn, ev: *ev}:
		return protocol.ResultOK
	default:
		d.log.Warn().Uint16("conn", uint16(ev.Conn)).Msg("device setting queue full")
		return protocol.ResultFailed
	}
}

func (d *Device) selectSetting(ev *services.SettingEvent) protocol.ResultCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.Request {
	case services.SettingRequestStartDemo:
		d.demo = true
		return protocol.ResultOK
	case services.SettingRequestStopDemo:
		d.demo = false
		return protocol.ResultOK
	case services.SettingRequestSetting:
	default:
		return protocol.ResultNotSupport
	}
	info := ev.Info
	switch info.ID {
	case services.SettingLED:
		if d.led.ColorNum == 0 || info.LED.ColorSelected >= d.led.ColorNum || info.LED.PatternSelected >= max(d.led.PatternNum, 1) {
			return protocol.ResultFailed
		}
		d.led.ColorSelected = info.LED.ColorSelected
		d.led.PatternSelected = info.LED.PatternSelected
	case services.SettingVibrator:
		if d.vibrator.PatternNum == 0 || info.Vibrator.PatternSelected >= d.vibrator.PatternNum {
			return protocol.ResultFailed
		}
		d.vibrator.PatternSelected = info.Vibrator.PatternSelected
	default:
		return protocol.ResultNotSupport
	}
	d.notifyTime = info.NotifyTime
	d.log.Info().Uint8("setting", uint8(info.ID)).Msg("device setting selected")
	return protocol.ResultOK
}

// settingInfo reports the LED when one is configured, else the vibrator.
func (d *Device) settingInfo() (protocol.ResultCode, *services.SettingInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.led.ColorNum > 0:
		return protocol.ResultOK, &services.SettingInfo{ID: services.SettingLED, NotifyTime: d.notifyTime, LED: d.led}
	case d.vibrator.PatternNum > 0:
		return protocol.ResultOK, &services.SettingInfo{ID: services.SettingVibrator, NotifyTime: d.notifyTime, Vibrator: d.vibrator}
	default:
		return protocol.ResultNoData, nil
	}
}

func (d *Device) settingNames(t services.SettingNameType) []string {
	switch t {
	case services.SettingNameLEDColor:
		return d.cfg.LEDColors
	case services.SettingNameLEDPattern:
		return d.cfg.LEDPatterns
	default:
		return d.cfg.VibrationPatterns
	}
}

func (d *Device) answer(ctx context.Context, engines Engines, j job) {
	e, err := engines.Lookup(j.conn)
	if err != nil {
		d.log.Debug().Err(err).Uint16("conn", uint16(j.conn)).Msg("device answer dropped")
		return
	}
	err = retryBusy(ctx, func() error {
		switch j.ev.Kind {
		case services.SettingEventGetInfo:
			result, info := d.settingInfo()
			return e.SettingInfoResponse(result, info)
		case services.SettingEventGetName:
			names := d.settingNames(j.ev.NameType)
			if len(names) == 0 {
				return e.SettingNameResponse(protocol.ResultNoData, nil)
			}
			return e.SettingNameResponse(protocol.ResultOK, EncodeNames(names))
		default:
			return e.SelectSettingResponse(protocol.ResultOK)
		}
	})
	if err != nil {
		d.log.Warn().Err(err).Uint16("conn", uint16(j.conn)).Msg("device answer failed")
	}
}
