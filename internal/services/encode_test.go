package services

import (
	"testing"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
	"github.com/danmuck/pdlp/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestEncodeNotifyOperation(t *testing.T) {
	testlog.Start(t)
	out := EncodeNotifyOperation(nil, ButtonVolumeUp)
	require.Equal(t, []byte{byte(protocol.ServiceOperation), 0x00, 0x00, 0x01, schema.OSTagButtonID, 0x01, 0x00, 0x00, byte(ButtonVolumeUp)}, out)
}

func TestEncodeNotifySensorShapes(t *testing.T) {
	testlog.Start(t)
	out, err := EncodeNotifySensor(nil, SensorGyroscope, Vector{X: 1, Y: 2, Z: 3}, 0)
	require.NoError(t, err)
	msg, fields := decodeResponse(t, out)
	require.Equal(t, schema.SISMsgNotifySensorInfo, msg.MessageID)
	require.Len(t, fields, 4)
	require.Equal(t, schema.SISTagXValue, fields[1].Tag)

	out, err = EncodeNotifySensor(nil, SensorHumidity, Vector{}, 0x0456)
	require.NoError(t, err)
	_, fields = decodeResponse(t, out)
	require.Len(t, fields, 2)
	require.Equal(t, schema.SISTagOriginalData, fields[1].Tag)

	_, err = EncodeNotifySensor(nil, SensorType(12), Vector{}, 0)
	require.ErrorIs(t, err, ErrInvalidSensor)
}

func TestEncodeStartApplicationUsesDistinctParameters(t *testing.T) {
	testlog.Start(t)
	out, err := EncodeStartApplication(nil, StartApplication{
		Package:   []byte("pkg"),
		NotifyApp: []byte("notify"),
		Class:     []byte("cls"),
	})
	require.NoError(t, err)
	msg, fields := decodeResponse(t, out)
	require.Equal(t, schema.NSMsgStartApplication, msg.MessageID)
	require.Equal(t, []tlv.Field{
		{Tag: schema.NSTagPackage, Value: []byte("pkg")},
		{Tag: schema.NSTagNotifyApp, Value: []byte("notify")},
		{Tag: schema.NSTagClass, Value: []byte("cls")},
	}, fields)

	out, err = EncodeStartApplication(nil, StartApplication{Package: []byte("p"), NotifyApp: []byte("n"), Class: []byte("c"), SharingInfo: []byte{}})
	require.NoError(t, err)
	msg, fields = decodeResponse(t, out)
	require.Equal(t, uint8(4), msg.ParamCount)
	require.Equal(t, schema.NSTagSharingInformation, fields[3].Tag)
}

func TestEncodeGetNotifyDetailData(t *testing.T) {
	testlog.Start(t)
	out := EncodeGetNotifyDetailData(nil, 42, schema.NSTagTitle, 64)
	msg, fields := decodeResponse(t, out)
	require.Equal(t, schema.NSMsgGetNotifyDetailData, msg.MessageID)
	require.Equal(t, []byte{schema.NSTagTitle}, fields[1].Value)
	require.Equal(t, []byte{64, 0, 0, 0}, fields[2].Value)
}

func TestEncodeSettingResponses(t *testing.T) {
	testlog.Start(t)
	info := &SettingInfo{ID: SettingVibrator, NotifyTime: NotifyTime5Sec, Vibrator: VibratorSetting{PatternNum: 3, PatternSelected: 2}}
	out, err := EncodeSettingInfoResponse(nil, protocol.ResultOK, info)
	require.NoError(t, err)
	msg, fields := decodeResponse(t, out)
	require.Equal(t, schema.SOSMsgGetSettingInformationResp, msg.MessageID)
	require.Equal(t, []byte{byte(SettingVibrator), 3, 2, NotifyTime5Sec}, fields[1].Value)

	var decoded SettingInfo
	require.NoError(t, decoded.UnmarshalBinary(fields[1].Value))
	require.Equal(t, *info, decoded)

	out, err = EncodeSettingInfoResponse(nil, protocol.ResultFailed, info)
	require.NoError(t, err)
	msg, _ = decodeResponse(t, out)
	require.Equal(t, uint8(1), msg.ParamCount)

	out, err = EncodeSettingNameResponse(nil, protocol.ResultOK, []byte("Blue"))
	require.NoError(t, err)
	_, fields = decodeResponse(t, out)
	require.Equal(t, schema.SOSTagSettingNameData, fields[1].Tag)

	out = EncodeSelectSettingResponse(nil, protocol.ResultCancel)
	msg, fields = decodeResponse(t, out)
	require.Equal(t, schema.SOSMsgSelectSettingInformationResp, msg.MessageID)
	require.Equal(t, []byte{byte(protocol.ResultCancel)}, fields[0].Value)
}

func TestParseNames(t *testing.T) {
	testlog.Start(t)
	b, err := ParseButtonID("volume_up")
	require.NoError(t, err)
	require.Equal(t, ButtonVolumeUp, b)
	_, err = ParseButtonID("nope")
	require.ErrorIs(t, err, ErrInvalidButton)

	s, err := ParseSensorType("humidity")
	require.NoError(t, err)
	require.Equal(t, SensorHumidity, s)
	require.False(t, SensorType(9).Valid())
	require.Equal(t, uint8(0), SensorType(9).Bit())
}
