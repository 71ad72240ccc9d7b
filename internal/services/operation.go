package services

import (
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
)

var ErrInvalidButton = errors.New("services: invalid button")

// ButtonID names a physical or virtual device button.
type ButtonID uint8

const (
	ButtonPower ButtonID = iota
	ButtonReturn
	ButtonEnter
	ButtonHome
	ButtonMenu
	ButtonVolumeUp
	ButtonVolumeDown
	ButtonPlay
	ButtonPause
	ButtonStop
	ButtonFastForward
	ButtonRewind
	ButtonShutter
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
	buttonMax
)

var buttonNames = [...]string{
	"power", "return", "enter", "home", "menu", "volume_up", "volume_down",
	"play", "pause", "stop", "fast_forward", "rewind", "shutter",
	"up", "down", "left", "right",
}

func (b ButtonID) Valid() bool {
	return b < buttonMax
}

func (b ButtonID) String() string {
	if !b.Valid() {
		return fmt.Sprintf("button(%d)", uint8(b))
	}
	return buttonNames[b]
}

// ParseButtonID accepts the names produced by String.
func ParseButtonID(name string) (ButtonID, error) {
	for i, n := range buttonNames {
		if n == name {
			return ButtonID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidButton, name)
}

// EncodeNotifyOperation builds the device-originated button notification.
// The operation service has no inbound messages.
func EncodeNotifyOperation(dst []byte, button ButtonID) []byte {
	dst = tlv.AppendMessageHeader(dst, protocol.ServiceOperation, schema.OSMsgNotifyOperation, 1)
	return tlv.AppendUint8(dst, schema.OSTagButtonID, uint8(button))
}
