package services

import (
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
)

type SettingEventKind uint8

const (
	SettingEventGetInfo SettingEventKind = iota
	SettingEventGetName
	SettingEventSelectInfo
)

type SettingNameType uint8

const (
	SettingNameLEDColor SettingNameType = iota
	SettingNameLEDPattern
	SettingNameVibrationPattern
)

type SettingID uint8

const (
	SettingLED      SettingID = 0x00
	SettingVibrator SettingID = 0x01
)

type SettingRequest uint8

const (
	SettingRequestSetting   SettingRequest = 0x00
	SettingRequestStartDemo SettingRequest = 0x01
	SettingRequestStopDemo  SettingRequest = 0x02
)

// Notify times in seconds.
const (
	NotifyTimeOff   uint8 = 0x00
	NotifyTime5Sec  uint8 = 0x05
	NotifyTime10Sec uint8 = 0x0A
	NotifyTime30Sec uint8 = 0x1E
	NotifyTime1Min  uint8 = 0x3C
	NotifyTime3Min  uint8 = 0xB4
)

const (
	ledSettingLen      = 6
	vibratorSettingLen = 4
)

var (
	ErrShortSetting   = fmt.Errorf("services: setting data too short: %w", protocol.ErrParameterMismatch)
	ErrUnknownSetting = fmt.Errorf("services: unknown setting id: %w", protocol.ErrUnsupported)
	errMissingSetting = errors.New("services: select setting without setting data")
)

type LEDSetting struct {
	ColorNum        uint8 `json:"color_num"`
	ColorSelected   uint8 `json:"color_selected"`
	PatternNum      uint8 `json:"pattern_num"`
	PatternSelected uint8 `json:"pattern_selected"`
}

type VibratorSetting struct {
	PatternNum      uint8 `json:"pattern_num"`
	PatternSelected uint8 `json:"pattern_selected"`
}

// SettingInfo is one indicator setting. Only the member matching ID is
// meaningful.
type SettingInfo struct {
	ID         SettingID       `json:"id"`
	NotifyTime uint8           `json:"notify_time"`
	LED        LEDSetting      `json:"led"`
	Vibrator   VibratorSetting `json:"vibrator"`
}

// MarshalBinary encodes s as the setting information data blob.
func (s SettingInfo) MarshalBinary() ([]byte, error) {
	switch s.ID {
	case SettingLED:
		return []byte{
			byte(SettingLED),
			s.LED.ColorNum,
			s.LED.ColorSelected,
			s.LED.PatternNum,
			s.LED.PatternSelected,
			s.NotifyTime,
		}, nil
	case SettingVibrator:
		return []byte{
			byte(SettingVibrator),
			s.Vibrator.PatternNum,
			s.Vibrator.PatternSelected,
			s.NotifyTime,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSetting, s.ID)
	}
}

// UnmarshalBinary decodes a setting information data blob.
func (s *SettingInfo) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return ErrShortSetting
	}
	*s = SettingInfo{ID: SettingID(b[0])}
	switch s.ID {
	case SettingLED:
		if len(b) < ledSettingLen {
			return fmt.Errorf("%w: led %d bytes", ErrShortSetting, len(b))
		}
		s.LED = LEDSetting{ColorNum: b[1], ColorSelected: b[2], PatternNum: b[3], PatternSelected: b[4]}
		s.NotifyTime = b[5]
	case SettingVibrator:
		if len(b) < vibratorSettingLen {
			return fmt.Errorf("%w: vibrator %d bytes", ErrShortSetting, len(b))
		}
		s.Vibrator = VibratorSetting{PatternNum: b[1], PatternSelected: b[2]}
		s.NotifyTime = b[3]
	default:
		return fmt.Errorf("%w: %d", ErrUnknownSetting, s.ID)
	}
	return nil
}

// SettingEvent is passed to the setting app. NameType is set for name
// requests, Request and Info for selections.
type SettingEvent struct {
	Conn     protocol.ConnHandle
	Kind     SettingEventKind
	NameType SettingNameType
	Request  SettingRequest
	Info     SettingInfo
}

// SettingApp answers setting requests later through the engine's setting
// response calls. It must not call back into the engine synchronously.
type SettingApp interface {
	HandleSettingEvent(ev *SettingEvent) protocol.ResultCode
}

// SettingOperation handles the setting operation service. Accepted requests
// complete without an inline response.
type SettingOperation struct {
	App SettingApp
}

// ID reports the setting operation service.
func (s *SettingOperation) ID() protocol.ServiceID {
	return protocol.ServiceSettingOperation
}

// Handle forwards setting requests to the app. GET_APP_VERSION and
// CONFIRM_INSTALL_APP are not supported.
func (s *SettingOperation) Handle(dst []byte, req *Request) ([]byte, error) {
	ev := &SettingEvent{Conn: req.Conn}
	p := req.Params
	switch req.Message.MessageID {
	case schema.SOSMsgGetSettingInformation:
		ev.Kind = SettingEventGetInfo
	case schema.SOSMsgGetSettingName:
		ev.Kind = SettingEventGetName
		v, err := p.Uint8(schema.SOSTagSettingNameType)
		if err != nil {
			return dst, err
		}
		ev.NameType = SettingNameType(v)
	case schema.SOSMsgSelectSettingInformation:
		ev.Kind = SettingEventSelectInfo
		v, err := p.Uint8(schema.SOSTagSettingInformationRequest)
		if err != nil {
			return dst, err
		}
		ev.Request = SettingRequest(v)
		if ev.Request == SettingRequestSetting {
			if !p.Has(schema.SOSTagSettingInformationData) {
				return dst, protocol.Reject(req.Message, protocol.ResultNoData, errMissingSetting)
			}
			data, _ := p.Opaque(schema.SOSTagSettingInformationData)
			if err := ev.Info.UnmarshalBinary(data); err != nil {
				return dst, err
			}
		}
	default:
		return dst, fmt.Errorf("%w: sos msg 0x%04x", protocol.ErrUnsupported, req.Message.MessageID)
	}
	if code := s.App.HandleSettingEvent(ev); code != protocol.ResultOK {
		return dst, rejected(req.Message, code)
	}
	return dst, nil
}

// EncodeSettingInfoResponse answers GetSettingInformation. info is only
// encoded when result is OK.
func EncodeSettingInfoResponse(dst []byte, result protocol.ResultCode, info *SettingInfo) ([]byte, error) {
	if result != protocol.ResultOK || info == nil {
		dst = tlv.AppendMessageHeader(dst, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingInformationResp, 1)
		return tlv.AppendUint8(dst, schema.SOSTagResultCode, uint8(result)), nil
	}
	data, err := info.MarshalBinary()
	if err != nil {
		return dst, err
	}
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingInformationResp, 2)
	dst = tlv.AppendUint8(dst, schema.SOSTagResultCode, uint8(result))
	return tlv.AppendOpaque(dst, schema.SOSTagSettingInformationData, data)
}

// EncodeSettingNameResponse answers GetSettingName. name is only encoded
// when result is OK.
func EncodeSettingNameResponse(dst []byte, result protocol.ResultCode, name []byte) ([]byte, error) {
	if result != protocol.ResultOK {
		dst = tlv.AppendMessageHeader(dst, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingNameResp, 1)
		return tlv.AppendUint8(dst, schema.SOSTagResultCode, uint8(result)), nil
	}
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingNameResp, 2)
	dst = tlv.AppendUint8(dst, schema.SOSTagResultCode, uint8(result))
	return tlv.AppendOpaque(dst, schema.SOSTagSettingNameData, name)
}

// EncodeSelectSettingResponse acknowledges SelectSettingInformation.
func EncodeSelectSettingResponse(dst []byte, result protocol.ResultCode) []byte {
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceSettingOperation, schema.SOSMsgSelectSettingInformationResp, 1)
	return tlv.AppendUint8(dst, schema.SOSTagResultCode, uint8(result))
}
