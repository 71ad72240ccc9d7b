package services

import (
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
)

// SensorType identifies a sensor. Motion sensors report a vector, the rest a
// single 16-bit original-data reading.
type SensorType uint8

const (
	SensorGyroscope SensorType = iota
	SensorAccelerometer
	SensorOrientation
	SensorBattery
	SensorTemperature
	SensorHumidity
	sensorMax
)

var ErrInvalidSensor = errors.New("services: invalid sensor type")

func (s SensorType) Valid() bool {
	return s < sensorMax
}

// Bit is the sensor's bit in Config.SensorTypes.
func (s SensorType) Bit() uint8 {
	if !s.Valid() {
		return 0
	}
	return 1 << s
}

// IsMotion reports whether readings are X/Y/Z vectors.
func (s SensorType) IsMotion() bool {
	return s == SensorGyroscope || s == SensorAccelerometer || s == SensorOrientation
}

func (s SensorType) String() string {
	switch s {
	case SensorGyroscope:
		return "gyroscope"
	case SensorAccelerometer:
		return "accelerometer"
	case SensorOrientation:
		return "orientation"
	case SensorBattery:
		return "battery"
	case SensorTemperature:
		return "temperature"
	case SensorHumidity:
		return "humidity"
	default:
		return fmt.Sprintf("sensor(%d)", uint8(s))
	}
}

// ParseSensorType accepts the names produced by String.
func ParseSensorType(name string) (SensorType, error) {
	for s := SensorGyroscope; s < sensorMax; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSensor, name)
}

type SensorStatus uint8

const (
	SensorStatusOff SensorStatus = iota
	SensorStatusOn
)

type SensorEventKind uint8

const (
	SensorEventSetNotify SensorEventKind = iota
	SensorEventGet
)

// Vector carries compact-encoded X/Y/Z values or thresholds.
type Vector struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z uint32 `json:"z"`
}

// SensorEvent is passed to the sensor app. For SensorEventGet the app fills
// Value or Original with the current reading. For SensorEventSetNotify,
// Value holds the motion thresholds and Original the optional original data.
type SensorEvent struct {
	Conn        protocol.ConnHandle
	Kind        SensorEventKind
	Type        SensorType
	Status      SensorStatus
	Value       Vector
	Original    uint16
	HasOriginal bool
}

// SensorApp must not call back into the link engine synchronously.
type SensorApp interface {
	HandleSensorEvent(ev *SensorEvent) protocol.ResultCode
}

// SensorInfo handles the sensor information service.
type SensorInfo struct {
	SensorTypes uint8
	App         SensorApp
}

// ID reports the sensor information service.
func (s *SensorInfo) ID() protocol.ServiceID {
	return protocol.ServiceSensorInfo
}

// Handle serves GET_SENSOR_INFO and SET_NOTIFY_SENSOR_INFO for the
// configured sensor types.
func (s *SensorInfo) Handle(dst []byte, req *Request) ([]byte, error) {
	switch req.Message.MessageID {
	case schema.SISMsgGetSensorInfo:
		return s.getSensorInfo(dst, req)
	case schema.SISMsgSetNotifySensorInfo:
		return s.setNotifySensorInfo(dst, req)
	default:
		return dst, fmt.Errorf("%w: sis msg 0x%04x", protocol.ErrUnsupported, req.Message.MessageID)
	}
}

func (s *SensorInfo) sensorType(p *schema.Params) (SensorType, error) {
	raw, err := p.Uint8(schema.SISTagSensorType)
	if err != nil {
		return 0, err
	}
	t := SensorType(raw)
	if s.SensorTypes&t.Bit() == 0 {
		return 0, fmt.Errorf("%w: %s", protocol.ErrUnsupported, t)
	}
	return t, nil
}

// getSensorInfo always answers in-band; an app failure becomes a
// result-only response.
func (s *SensorInfo) getSensorInfo(dst []byte, req *Request) ([]byte, error) {
	t, err := s.sensorType(req.Params)
	if err != nil {
		return dst, err
	}
	ev := &SensorEvent{Conn: req.Conn, Kind: SensorEventGet, Type: t}
	code := s.App.HandleSensorEvent(ev)
	if code != protocol.ResultOK {
		dst = tlv.AppendMessageHeader(dst, protocol.ServiceSensorInfo, schema.SISMsgGetSensorInfoResp, 1)
		return tlv.AppendUint8(dst, schema.SISTagResultCode, uint8(code)), nil
	}
	if t.IsMotion() {
		dst = tlv.AppendMessageHeader(dst, protocol.ServiceSensorInfo, schema.SISMsgGetSensorInfoResp, 4)
		dst = tlv.AppendUint8(dst, schema.SISTagResultCode, uint8(protocol.ResultOK))
		return appendVector(dst, ev.Value), nil
	}
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceSensorInfo, schema.SISMsgGetSensorInfoResp, 2)
	dst = tlv.AppendUint8(dst, schema.SISTagResultCode, uint8(protocol.ResultOK))
	return tlv.AppendUint16(dst, schema.SISTagOriginalData, ev.Original), nil
}

func (s *SensorInfo) setNotifySensorInfo(dst []byte, req *Request) ([]byte, error) {
	p := req.Params
	t, err := s.sensorType(p)
	if err != nil {
		return dst, err
	}
	status, err := p.Uint8(schema.SISTagStatus)
	if err != nil {
		return dst, err
	}
	ev := &SensorEvent{Conn: req.Conn, Kind: SensorEventSetNotify, Type: t, Status: SensorStatus(status)}
	if t.IsMotion() {
		if ev.Value.X, err = p.Uint32(schema.SISTagXThreshold); err != nil {
			return dst, err
		}
		if ev.Value.Y, err = p.Uint32(schema.SISTagYThreshold); err != nil {
			return dst, err
		}
		if ev.Value.Z, err = p.Uint32(schema.SISTagZThreshold); err != nil {
			return dst, err
		}
	} else if p.Has(schema.SISTagOriginalData) {
		if ev.Original, err = p.Uint16(schema.SISTagOriginalData); err != nil {
			return dst, err
		}
		ev.HasOriginal = true
	}
	code := s.App.HandleSensorEvent(ev)
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceSensorInfo, schema.SISMsgSetNotifySensorInfoResp, 1)
	return tlv.AppendUint8(dst, schema.SISTagResultCode, uint8(code)), nil
}

func appendVector(dst []byte, v Vector) []byte {
	dst = tlv.AppendUint32(dst, schema.SISTagXValue, v.X)
	dst = tlv.AppendUint32(dst, schema.SISTagYValue, v.Y)
	return tlv.AppendUint32(dst, schema.SISTagZValue, v.Z)
}

// EncodeNotifySensor builds a device-initiated sensor notification.
// original is used for environment sensors, v for motion sensors.
func EncodeNotifySensor(dst []byte, t SensorType, v Vector, original uint16) ([]byte, error) {
	if !t.Valid() {
		return dst, fmt.Errorf("%w: %d", ErrInvalidSensor, uint8(t))
	}
	if t.IsMotion() {
		dst = tlv.AppendMessageHeader(dst, protocol.ServiceSensorInfo, schema.SISMsgNotifySensorInfo, 4)
		dst = tlv.AppendUint8(dst, schema.SISTagSensorType, uint8(t))
		return appendVector(dst, v), nil
	}
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceSensorInfo, schema.SISMsgNotifySensorInfo, 2)
	dst = tlv.AppendUint8(dst, schema.SISTagSensorType, uint8(t))
	return tlv.AppendUint16(dst, schema.SISTagOriginalData, original), nil
}
