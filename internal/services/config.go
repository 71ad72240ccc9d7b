package services

import (
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
)

// Config is the static device identity answered by the property information
// service and the filters applied by notification and sensor handlers.
type Config struct {
	// ServiceList is derived from the registered apps when zero.
	ServiceList    uint8
	DeviceID       uint16
	DeviceUID      uint32
	Capability     uint8
	NotifyCategory uint16
	// SensorTypes has bit 1<<SensorType set per supported sensor.
	SensorTypes uint8
}

// Apps are the application collaborators. A nil app disables its service.
type Apps struct {
	Sensor       SensorApp
	Notification NotificationApp
	Setting      SettingApp
}

// ServiceList returns the advertised service bitmask for apps.
// Property information and operation are always present.
func (a Apps) ServiceList() uint8 {
	list := protocol.ServiceBitPropertyInfo | protocol.ServiceBitOperation
	if a.Notification != nil {
		list |= protocol.ServiceBitNotification
	}
	if a.Sensor != nil {
		list |= protocol.ServiceBitSensorInfo
	}
	if a.Setting != nil {
		list |= protocol.ServiceBitSettingOperation
	}
	return list
}

// Session is the per-connection state that outlives a single transaction.
type Session struct {
	// PendingParamID is the parameter requested by the outstanding detail
	// fetch, or schema.NSTagInvalid.
	PendingParamID uint8
}

// NewSession starts with no pending detail fetch.
func NewSession() *Session {
	return &Session{PendingParamID: schema.NSTagInvalid}
}

// Pending reports the outstanding detail fetch.
func (s *Session) Pending() (uint8, bool) {
	return s.PendingParamID, s.PendingParamID != schema.NSTagInvalid
}

// ClearPending forgets the pending detail fetch.
func (s *Session) ClearPending() {
	s.PendingParamID = schema.NSTagInvalid
}
