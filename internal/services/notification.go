package services

import (
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
)

var ErrNoPendingFetch = errors.New("services: no notify detail fetch pending")

type NotificationEventKind uint8

const (
	NotificationEventInfo NotificationEventKind = iota
	NotificationEventDetail
	NotificationEventStartApplication
)

type RumblingSetting uint8

const (
	RumblingLED RumblingSetting = iota
	RumblingVibration
)

// NotifyInfo is a notification pushed by the peer. Pattern slices alias the
// message buffer.
type NotifyInfo struct {
	Category         uint16
	UniqueID         uint16
	ParameterIDList  uint16
	Rumbling         RumblingSetting
	HasRumbling      bool
	VibrationPattern []byte
	LEDPattern       []byte
}

// NotifyDetail answers a device-initiated detail fetch. Data aliases the
// message buffer and is only set when Result is OK.
type NotifyDetail struct {
	Result   protocol.ResultCode
	UniqueID uint16
	ParamID  uint8
	Data     []byte
}

// NotificationEvent is passed to the notification app. Only the member
// matching Kind is set.
type NotificationEvent struct {
	Conn        protocol.ConnHandle
	Kind        NotificationEventKind
	Info        NotifyInfo
	Detail      NotifyDetail
	StartResult protocol.ResultCode
}

// NotificationApp must copy any slice it keeps and must not call back into
// the link engine synchronously.
type NotificationApp interface {
	HandleNotificationEvent(ev *NotificationEvent) protocol.ResultCode
}

// Notification handles the notification service.
type Notification struct {
	Categories uint16
	App        NotificationApp
}

// ID reports the notification service.
func (n *Notification) ID() protocol.ServiceID {
	return protocol.ServiceNotification
}

// Precheck rejects NOTIFY_INFORMATION for an unconfigured category before the
// optional parameters are validated. A malformed category is left to the
// schema.
func (n *Notification) Precheck(msg protocol.Message) error {
	if msg.MessageID != schema.NSMsgNotifyInformation || msg.ParamCount == 0 {
		return nil
	}
	category, _, err := tlv.DecodeUint16(msg.Params, schema.NSTagNotifyCategory)
	if err != nil {
		return nil
	}
	return n.checkCategory(category)
}

func (n *Notification) checkCategory(category uint16) error {
	if n.Categories&category == 0 {
		return fmt.Errorf("%w: category 0x%04x", protocol.ErrUnsupported, category)
	}
	return nil
}

// Handle serves the peer-originated notification messages.
func (n *Notification) Handle(dst []byte, req *Request) ([]byte, error) {
	switch req.Message.MessageID {
	case schema.NSMsgConfirmNotifyCategory:
		dst = tlv.AppendMessageHeader(dst, protocol.ServiceNotification, schema.NSMsgConfirmNotifyCategoryResp, 2)
		dst = tlv.AppendUint8(dst, schema.NSTagResultCode, uint8(protocol.ResultOK))
		return tlv.AppendUint16(dst, schema.NSTagNotifyCategory, n.Categories), nil
	case schema.NSMsgNotifyInformation:
		return n.notifyInformation(dst, req)
	case schema.NSMsgGetNotifyDetailDataResp:
		return n.notifyDetailResponse(dst, req)
	case schema.NSMsgStartApplicationResp:
		result, err := req.Params.Uint8(schema.NSTagResultCode)
		if err != nil {
			return dst, err
		}
		ev := &NotificationEvent{Conn: req.Conn, Kind: NotificationEventStartApplication, StartResult: protocol.ResultCode(result)}
		return n.forward(dst, req, ev)
	default:
		return dst, fmt.Errorf("%w: ns msg 0x%04x", protocol.ErrUnsupported, req.Message.MessageID)
	}
}

func (n *Notification) notifyInformation(dst []byte, req *Request) ([]byte, error) {
	p := req.Params
	var info NotifyInfo
	var err error
	if info.Category, err = p.Uint16(schema.NSTagNotifyCategory); err != nil {
		return dst, err
	}
	if err := n.checkCategory(info.Category); err != nil {
		return dst, err
	}
	if info.UniqueID, err = p.Uint16(schema.NSTagUniqueID); err != nil {
		return dst, err
	}
	if info.ParameterIDList, err = p.Uint16(schema.NSTagParameterIDList); err != nil {
		return dst, err
	}
	if p.Has(schema.NSTagRumblingSetting) {
		v, err := p.Uint8(schema.NSTagRumblingSetting)
		if err != nil {
			return dst, err
		}
		info.Rumbling = RumblingSetting(v)
		info.HasRumbling = true
	}
	if p.Has(schema.NSTagVibrationPattern) {
		info.VibrationPattern, _ = p.Opaque(schema.NSTagVibrationPattern)
	}
	if p.Has(schema.NSTagLEDPattern) {
		info.LEDPattern, _ = p.Opaque(schema.NSTagLEDPattern)
	}
	return n.forward(dst, req, &NotificationEvent{Conn: req.Conn, Kind: NotificationEventInfo, Info: info})
}

// notifyDetailResponse matches the peer's answer to GetNotifyDetailData.
// The pending fetch is consumed by any response that arrives.
func (n *Notification) notifyDetailResponse(dst []byte, req *Request) ([]byte, error) {
	paramID, ok := req.Session.Pending()
	if !ok {
		return dst, protocol.Reject(req.Message, protocol.ResultNoData, ErrNoPendingFetch)
	}
	req.Session.ClearPending()

	p := req.Params
	result, err := p.Uint8(schema.NSTagResultCode)
	if err != nil {
		return dst, err
	}
	detail := NotifyDetail{Result: protocol.ResultCode(result), ParamID: paramID}
	if detail.UniqueID, err = p.Uint16(schema.NSTagUniqueID); err != nil {
		return dst, err
	}
	if detail.Result == protocol.ResultOK {
		trailing := p.Trailing()
		if len(trailing) == 0 {
			return dst, fmt.Errorf("%w: detail data for tag %d", schema.ErrMissingParameter, paramID)
		}
		if trailing[0].Tag != paramID {
			return dst, fmt.Errorf("%w: got %d want %d", tlv.ErrTagMismatch, trailing[0].Tag, paramID)
		}
		detail.Data = trailing[0].Value
	}
	return n.forward(dst, req, &NotificationEvent{Conn: req.Conn, Kind: NotificationEventDetail, Detail: detail})
}

func (n *Notification) forward(dst []byte, req *Request, ev *NotificationEvent) ([]byte, error) {
	if code := n.App.HandleNotificationEvent(ev); code != protocol.ResultOK {
		return dst, rejected(req.Message, code)
	}
	return dst, nil
}

// EncodeGetNotifyDetailData asks the peer for one parameter of a
// notification. The caller records paramID as the pending fetch.
func EncodeGetNotifyDetailData(dst []byte, uniqueID uint16, paramID uint8, paramLen uint32) []byte {
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceNotification, schema.NSMsgGetNotifyDetailData, 3)
	dst = tlv.AppendUint16(dst, schema.NSTagUniqueID, uniqueID)
	dst = tlv.AppendUint8(dst, schema.NSTagGetParameterID, paramID)
	return tlv.AppendUint32(dst, schema.NSTagGetParameterLength, paramLen)
}

// StartApplication asks the peer to launch an application.
// SharingInfo is optional.
type StartApplication struct {
	Package     []byte
	NotifyApp   []byte
	Class       []byte
	SharingInfo []byte
}

// EncodeStartApplication builds the device-initiated launch request.
func EncodeStartApplication(dst []byte, app StartApplication) ([]byte, error) {
	count := uint8(3)
	if app.SharingInfo != nil {
		count = 4
	}
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceNotification, schema.NSMsgStartApplication, count)
	var err error
	if dst, err = tlv.AppendOpaque(dst, schema.NSTagPackage, app.Package); err != nil {
		return dst, err
	}
	if dst, err = tlv.AppendOpaque(dst, schema.NSTagNotifyApp, app.NotifyApp); err != nil {
		return dst, err
	}
	if dst, err = tlv.AppendOpaque(dst, schema.NSTagClass, app.Class); err != nil {
		return dst, err
	}
	if app.SharingInfo != nil {
		if dst, err = tlv.AppendOpaque(dst, schema.NSTagSharingInformation, app.SharingInfo); err != nil {
			return dst, err
		}
	}
	return dst, nil
}
