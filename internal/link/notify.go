package link

import (
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/services"
)

var ErrInvalidParamID = errors.New("link: invalid notify detail parameter id")

// indicate starts a device-initiated transaction. The engine must be idle
// with nothing in flight. A send failure is returned while the engine stays
// INDICATING until confirmation, timeout or disconnect.
func (e *Engine) indicate(what string, build func(dst []byte) ([]byte, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.state != StateIdle || e.pending {
		return fmt.Errorf("%w: %s while %s", ErrBusy, what, e.state)
	}
	out, err := build(e.outbound[:0])
	if err != nil {
		clear(e.outbound)
		return err
	}
	if len(out) > len(e.outbound) {
		clear(e.outbound)
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrBufferOverflow, what, len(out), len(e.outbound))
	}
	copy(e.outbound, out)
	e.started = e.now()
	e.log.Debug().Str("indication", what).Int("len", len(out)).Msg("link.indicate start")
	return e.beginIndicationLocked(len(out))
}

// NotifyOperation reports a button press.
func (e *Engine) NotifyOperation(button services.ButtonID) error {
	return e.indicate("notify_operation", func(dst []byte) ([]byte, error) {
		return services.EncodeNotifyOperation(dst, button), nil
	})
}

// NotifySensor pushes a sensor reading. Motion sensors send v, the others
// send original.
func (e *Engine) NotifySensor(t services.SensorType, v services.Vector, original uint16) error {
	return e.indicate("notify_sensor", func(dst []byte) ([]byte, error) {
		return services.EncodeNotifySensor(dst, t, v, original)
	})
}

// GetNotifyDetailData asks the peer for one parameter of a notification and
// records it as the pending fetch matched by the peer's response.
func (e *Engine) GetNotifyDetailData(uniqueID uint16, paramID uint8, paramLen uint32) error {
	if paramID >= schema.NSTagInvalid {
		return fmt.Errorf("%w: %d", ErrInvalidParamID, paramID)
	}
	return e.indicate("get_notify_detail_data", func(dst []byte) ([]byte, error) {
		e.session.PendingParamID = paramID
		return services.EncodeGetNotifyDetailData(dst, uniqueID, paramID, paramLen), nil
	})
}

// StartApplication asks the peer to launch an application.
func (e *Engine) StartApplication(app services.StartApplication) error {
	return e.indicate("start_application", func(dst []byte) ([]byte, error) {
		return services.EncodeStartApplication(dst, app)
	})
}

// SettingInfoResponse answers a deferred GetSettingInformation.
func (e *Engine) SettingInfoResponse(result protocol.ResultCode, info *services.SettingInfo) error {
	return e.indicate("setting_info_response", func(dst []byte) ([]byte, error) {
		return services.EncodeSettingInfoResponse(dst, result, info)
	})
}

// SettingNameResponse answers a deferred GetSettingName.
func (e *Engine) SettingNameResponse(result protocol.ResultCode, name []byte) error {
	return e.indicate("setting_name_response", func(dst []byte) ([]byte, error) {
		return services.EncodeSettingNameResponse(dst, result, name)
	})
}

// SelectSettingResponse answers a deferred SelectSettingInformation.
func (e *Engine) SelectSettingResponse(result protocol.ResultCode) error {
	return e.indicate("select_setting_response", func(dst []byte) ([]byte, error) {
		return services.EncodeSelectSettingResponse(dst, result), nil
	})
}
