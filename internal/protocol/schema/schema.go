package schema

import (
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Kind is the value shape of one parameter.
type Kind uint8

const (
	KindUint8 Kind = iota + 1
	KindUint16
	KindUint32
	KindOpaque
)

// Width is the fixed value length of k, or -1 for opaque values.
func (k Kind) Width() int {
	switch k {
	case KindUint8:
		return 1
	case KindUint16:
		return 2
	case KindUint32:
		return 4
	default:
		return -1
	}
}

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "u8"
	case KindUint16:
		return "u16"
	case KindUint32:
		return "u32"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TagAny matches any tag not claimed by another optional requirement.
const TagAny uint8 = 0xFF

var (
	ErrUnknownMessage     = fmt.Errorf("schema: unknown message: %w", protocol.ErrUnsupported)
	ErrMissingParameter   = fmt.Errorf("schema: missing parameter: %w", protocol.ErrParameterMismatch)
	ErrTrailingParameter  = fmt.Errorf("schema: trailing parameter data: %w", protocol.ErrParameterMismatch)
	ErrDuplicateParameter = fmt.Errorf("schema: duplicate parameter: %w", protocol.ErrParameterMismatch)
	ErrParameterKind      = fmt.Errorf("schema: parameter kind mismatch: %w", protocol.ErrParameterMismatch)
)

// Requirement is one {tag, kind} slot of a message schema. Required slots
// come first and are positional; optional slots may follow in any order.
type Requirement struct {
	Tag      uint8
	Kind     Kind
	Optional bool
}

// Key selects one inbound message.
type Key struct {
	Service   protocol.ServiceID
	MessageID uint16
}

// ValidationError reports which parameter of a message failed its schema.
type ValidationError struct {
	Service   protocol.ServiceID
	MessageID uint16
	Index     int
	Tag       uint8
	Reason    string
	Err       error
}

func (e ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("schema: service=%s msg=0x%04x: %s", e.Service, e.MessageID, e.Reason)
	}
	return fmt.Sprintf("schema: service=%s msg=0x%04x param=%d tag=%d: %s", e.Service, e.MessageID, e.Index, e.Tag, e.Reason)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

var requirements = map[Key][]Requirement{
	{protocol.ServicePropertyInfo, PISMsgGetDeviceInformation}: {},

	{protocol.ServiceNotification, NSMsgConfirmNotifyCategory}: {},
	{protocol.ServiceNotification, NSMsgNotifyInformation}: {
		{Tag: NSTagNotifyCategory, Kind: KindUint16},
		{Tag: NSTagUniqueID, Kind: KindUint16},
		{Tag: NSTagParameterIDList, Kind: KindUint16},
		{Tag: NSTagRumblingSetting, Kind: KindUint8, Optional: true},
		{Tag: NSTagVibrationPattern, Kind: KindOpaque, Optional: true},
		{Tag: NSTagLEDPattern, Kind: KindOpaque, Optional: true},
	},
	{protocol.ServiceNotification, NSMsgGetNotifyDetailDataResp}: {
		{Tag: NSTagResultCode, Kind: KindUint8},
		{Tag: NSTagUniqueID, Kind: KindUint16},
		{Tag: TagAny, Kind: KindOpaque, Optional: true},
	},
	{protocol.ServiceNotification, NSMsgStartApplicationResp}: {
		{Tag: NSTagResultCode, Kind: KindUint8},
	},

	{protocol.ServiceSensorInfo, SISMsgGetSensorInfo}: {
		{Tag: SISTagSensorType, Kind: KindUint8},
	},
	{protocol.ServiceSensorInfo, SISMsgSetNotifySensorInfo}: {
		{Tag: SISTagSensorType, Kind: KindUint8},
		{Tag: SISTagStatus, Kind: KindUint8},
		{Tag: SISTagXThreshold, Kind: KindUint32, Optional: true},
		{Tag: SISTagYThreshold, Kind: KindUint32, Optional: true},
		{Tag: SISTagZThreshold, Kind: KindUint32, Optional: true},
		{Tag: SISTagOriginalData, Kind: KindUint16, Optional: true},
	},

	{protocol.ServiceSettingOperation, SOSMsgGetSettingInformation}: {},
	{protocol.ServiceSettingOperation, SOSMsgGetSettingName}: {
		{Tag: SOSTagSettingNameType, Kind: KindUint8},
	},
	{protocol.ServiceSettingOperation, SOSMsgSelectSettingInformation}: {
		{Tag: SOSTagSettingInformationRequest, Kind: KindUint8},
		{Tag: SOSTagSettingInformationData, Kind: KindOpaque, Optional: true},
	},
}

// Lookup returns the schema of an inbound message.
func Lookup(service protocol.ServiceID, messageID uint16) ([]Requirement, bool) {
	reqs, ok := requirements[Key{service, messageID}]
	return reqs, ok
}

// Params is the validated parameter set of one message. Values alias the
// message buffer and must not be retained past dispatch.
type Params struct {
	Key     Key
	fields  []tlv.Field
	unknown []tlv.Field
}

// Parse validates msg against its schema: param_count must match the
// parameters present, required slots must appear in order with the right
// tag and width, and optional slots at most once. Unknown optional tags
// are skipped.
func Parse(msg protocol.Message) (*Params, error) {
	key := Key{msg.Service, msg.MessageID}
	reqs, ok := requirements[key]
	if !ok {
		log.Debug().Stringer("service", msg.Service).Uint16("msg", msg.MessageID).Msg("schema.Parse unknown message")
		return nil, invalid(msg, -1, 0, "unknown message", ErrUnknownMessage)
	}

	fields := make([]tlv.Field, 0, msg.ParamCount)
	off := 0
	for i := 0; i < int(msg.ParamCount); i++ {
		if off == len(msg.Params) {
			return nil, invalid(msg, i, 0, "declared parameter absent", ErrMissingParameter)
		}
		f, n, err := tlv.ReadField(msg.Params[off:])
		if err != nil {
			return nil, invalid(msg, i, msg.Params[off], "malformed parameter", err)
		}
		fields = append(fields, f)
		off += n
	}
	if off != len(msg.Params) {
		return nil, invalid(msg, int(msg.ParamCount), 0, "bytes beyond declared count", ErrTrailingParameter)
	}

	p := &Params{Key: key, fields: make([]tlv.Field, 0, len(fields))}
	required := 0
	for _, req := range reqs {
		if !req.Optional {
			required++
		}
	}
	if len(fields) < required {
		return nil, invalid(msg, len(fields), reqs[len(fields)].Tag, "required parameter missing", ErrMissingParameter)
	}
	for i := 0; i < required; i++ {
		req := reqs[i]
		f := fields[i]
		if f.Tag != req.Tag {
			return nil, invalid(msg, i, f.Tag, fmt.Sprintf("expected tag %d", req.Tag), tlv.ErrTagMismatch)
		}
		if err := checkKind(f, req.Kind); err != nil {
			return nil, invalid(msg, i, f.Tag, err.Error(), err)
		}
		p.fields = append(p.fields, f)
	}

	seen := make(map[uint8]struct{})
	for i := required; i < len(fields); i++ {
		f := fields[i]
		req, ok := matchOptional(reqs[required:], f.Tag)
		if !ok {
			log.Debug().Stringer("service", msg.Service).Uint16("msg", msg.MessageID).Uint8("tag", f.Tag).Msg("schema.Parse skip unknown optional")
			p.unknown = append(p.unknown, f)
			continue
		}
		if _, dup := seen[req.Tag]; dup {
			return nil, invalid(msg, i, f.Tag, "duplicate optional parameter", ErrDuplicateParameter)
		}
		seen[req.Tag] = struct{}{}
		if err := checkKind(f, req.Kind); err != nil {
			return nil, invalid(msg, i, f.Tag, err.Error(), err)
		}
		p.fields = append(p.fields, f)
	}
	return p, nil
}

func matchOptional(reqs []Requirement, tag uint8) (Requirement, bool) {
	for _, req := range reqs {
		if req.Tag == tag {
			return req, true
		}
	}
	for _, req := range reqs {
		if req.Tag == TagAny {
			return req, true
		}
	}
	return Requirement{}, false
}

func checkKind(f tlv.Field, k Kind) error {
	w := k.Width()
	if w < 0 {
		return nil
	}
	if len(f.Value) != w {
		return fmt.Errorf("%w: tag=%d got=%d want=%d", tlv.ErrLengthMismatch, f.Tag, len(f.Value), w)
	}
	return nil
}

func invalid(msg protocol.Message, index int, tag uint8, reason string, err error) error {
	log.Debug().
		Stringer("service", msg.Service).
		Uint16("msg", msg.MessageID).
		Int("index", index).
		Uint8("tag", tag).
		Err(err).
		Msg("schema.Parse rejected")
	return ValidationError{
		Service:   msg.Service,
		MessageID: msg.MessageID,
		Index:     index,
		Tag:       tag,
		Reason:    reason,
		Err:       err,
	}
}

// Len is the number of recognized parameters.
func (p *Params) Len() int {
	return len(p.fields)
}

// Unknown returns skipped optional parameters.
func (p *Params) Unknown() []tlv.Field {
	return p.unknown
}

// Has reports whether tag was present.
func (p *Params) Has(tag uint8) bool {
	_, ok := p.field(tag)
	return ok
}

func (p *Params) field(tag uint8) (tlv.Field, bool) {
	for _, f := range p.fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return tlv.Field{}, false
}

func (p *Params) fixed(tag uint8, width int) (uint32, error) {
	f, ok := p.field(tag)
	if !ok {
		return 0, fmt.Errorf("%w: tag=%d", ErrMissingParameter, tag)
	}
	if len(f.Value) != width {
		return 0, fmt.Errorf("%w: tag=%d", ErrParameterKind, tag)
	}
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(f.Value[i]) << (8 * i)
	}
	return v, nil
}

// Uint8 returns the one-byte parameter with tag.
func (p *Params) Uint8(tag uint8) (uint8, error) {
	v, err := p.fixed(tag, 1)
	return uint8(v), err
}

// Uint16 returns the little-endian two-byte parameter with tag.
func (p *Params) Uint16(tag uint8) (uint16, error) {
	v, err := p.fixed(tag, 2)
	return uint16(v), err
}

// Uint32 returns the little-endian four-byte parameter with tag.
func (p *Params) Uint32(tag uint8) (uint32, error) {
	return p.fixed(tag, 4)
}

// Opaque returns the raw value view of tag.
func (p *Params) Opaque(tag uint8) ([]byte, error) {
	f, ok := p.field(tag)
	if !ok {
		return nil, fmt.Errorf("%w: tag=%d", ErrMissingParameter, tag)
	}
	return f.Value, nil
}

// Trailing returns the optional parameters after the required ones, in wire
// order. Used for TagAny slots whose tag is decided at runtime.
func (p *Params) Trailing() []tlv.Field {
	reqs := requirements[p.Key]
	required := 0
	for _, req := range reqs {
		if !req.Optional {
			required++
		}
	}
	if required >= len(p.fields) {
		return nil
	}
	return p.fields[required:]
}

// IsValidation reports whether err came from schema validation.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
