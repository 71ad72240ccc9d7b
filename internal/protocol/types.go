package protocol

import (
	"encoding/binary"
	"fmt"
)

// MessageHeaderLen is service_id(1) + message_id(2) + param_count(1).
const MessageHeaderLen = 4

// ConnHandle identifies one link connection.
type ConnHandle uint16

// ServiceID selects one of the sub-protocols multiplexed over the link.
type ServiceID uint8

const (
	ServicePropertyInfo ServiceID = iota
	ServiceNotification
	ServiceOperation
	ServiceSensorInfo
	ServiceSettingOperation
	serviceMax
)

// Valid reports whether s is one of the defined enumerants.
func (s ServiceID) Valid() bool {
	return s < serviceMax
}

func (s ServiceID) String() string {
	switch s {
	case ServicePropertyInfo:
		return "property_info"
	case ServiceNotification:
		return "notification"
	case ServiceOperation:
		return "operation"
	case ServiceSensorInfo:
		return "sensor_info"
	case ServiceSettingOperation:
		return "setting_operation"
	default:
		return fmt.Sprintf("service(%d)", uint8(s))
	}
}

// Service list bitmask advertised by the property information service.
const (
	ServiceBitNone             uint8 = 0x00
	ServiceBitPropertyInfo     uint8 = 0x01
	ServiceBitNotification     uint8 = 0x02
	ServiceBitOperation        uint8 = 0x04
	ServiceBitSensorInfo       uint8 = 0x08
	ServiceBitSettingOperation uint8 = 0x10
)

// ResultCode is the wire-level outcome carried in every acknowledgement.
type ResultCode uint8

const (
	ResultOK ResultCode = iota
	ResultCancel
	ResultFailed
	ResultUnknown
	ResultNoData
	ResultNotSupport
	resultMax
)

// Valid reports whether r is one of the defined result codes.
func (r ResultCode) Valid() bool {
	return r < resultMax
}

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultCancel:
		return "CANCEL"
	case ResultFailed:
		return "ERROR_FAILED"
	case ResultUnknown:
		return "ERROR_UNKNOWN"
	case ResultNoData:
		return "ERROR_NO_DATA"
	case ResultNotSupport:
		return "ERROR_NOT_SUPPORT"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}

// Message is one fully assembled service message.
// Params aliases the engine's assembly buffer and is only valid while the
// message is being dispatched.
type Message struct {
	Service    ServiceID
	MessageID  uint16
	ParamCount uint8
	Params     []byte
}

// ParseMessage splits an assembled buffer into header and parameter view.
func ParseMessage(b []byte) (Message, error) {
	if len(b) < MessageHeaderLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}
	return Message{
		Service:    ServiceID(b[0]),
		MessageID:  binary.LittleEndian.Uint16(b[1:3]),
		ParamCount: b[3],
		Params:     b[MessageHeaderLen:],
	}, nil
}
