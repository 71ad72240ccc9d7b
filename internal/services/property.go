package services

import (
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
)

// PropertyInfo answers static identity queries inline.
type PropertyInfo struct {
	Config Config
}

// ID reports the property information service.
func (p *PropertyInfo) ID() protocol.ServiceID {
	return protocol.ServicePropertyInfo
}

// Handle answers GET_DEVICE_INFORMATION from the static configuration.
func (p *PropertyInfo) Handle(dst []byte, req *Request) ([]byte, error) {
	if req.Message.MessageID != schema.PISMsgGetDeviceInformation {
		return dst, fmt.Errorf("%w: pis msg 0x%04x", protocol.ErrUnsupported, req.Message.MessageID)
	}
	dst = tlv.AppendMessageHeader(dst, protocol.ServicePropertyInfo, schema.PISMsgGetDeviceInformationResp, 5)
	dst = tlv.AppendUint8(dst, schema.PISTagResultCode, uint8(protocol.ResultOK))
	dst = tlv.AppendUint8(dst, schema.PISTagServiceList, p.Config.ServiceList)
	dst = tlv.AppendUint16(dst, schema.PISTagDeviceID, p.Config.DeviceID)
	dst = tlv.AppendUint32(dst, schema.PISTagDeviceUID, p.Config.DeviceUID)
	dst = tlv.AppendUint8(dst, schema.PISTagDeviceCapability, p.Config.Capability)
	return dst, nil
}
