package link

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/frame"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/danmuck/pdlp/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (f *fakeTransport) SendIndication(_ protocol.ConnHandle, seg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte(nil), seg...))
	return nil
}

func (f *fakeTransport) take() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type recordingApp struct {
	mu            sync.Mutex
	code          protocol.ResultCode
	sensors       int
	settings      int
	notifications []services.NotificationEvent
}

func (a *recordingApp) HandleSensorEvent(ev *services.SensorEvent) protocol.ResultCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sensors++
	return a.code
}

func (a *recordingApp) HandleSettingEvent(ev *services.SettingEvent) protocol.ResultCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings++
	return a.code
}

func (a *recordingApp) HandleNotificationEvent(ev *services.NotificationEvent) protocol.ResultCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *ev
	cp.Info.LEDPattern = bytes.Clone(ev.Info.LEDPattern)
	cp.Detail.Data = bytes.Clone(ev.Detail.Data)
	a.notifications = append(a.notifications, cp)
	return a.code
}

var deviceConfig = services.Config{
	DeviceID:       0x0102,
	DeviceUID:      0x03040506,
	Capability:     schema.CapabilityAccelerator,
	NotifyCategory: schema.CategoryAll | schema.CategoryMail,
	SensorTypes:    services.SensorAccelerometer.Bit() | services.SensorTemperature.Bit(),
}

func testConfig(app *recordingApp, ft *fakeTransport) Config {
	apps := services.Apps{Sensor: app, Notification: app, Setting: app}
	return Config{
		Limits:    DefaultLimits(),
		Router:    services.NewDeviceRouter(deviceConfig, apps),
		Transport: ft,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *recordingApp) {
	t.Helper()
	ft := &fakeTransport{}
	app := &recordingApp{}
	e, err := NewEngine(1, testConfig(app, ft))
	require.NoError(t, err)
	return e, ft, app
}

// peerSegments splits msg into peer writes of at most chunk payload bytes.
func peerSegments(msg []byte, chunk int) [][]byte {
	var out [][]byte
	for i := 0; i*chunk < len(msg); i++ {
		end := min((i+1)*chunk, len(msg))
		h := frame.Header{Seq: uint8(i), Execute: end == len(msg)}
		out = append(out, frame.EncodeSegment(h, msg[i*chunk:end]))
	}
	return out
}

func writeMessage(t *testing.T, e *Engine, msg []byte) error {
	t.Helper()
	segs := peerSegments(msg, frame.ChunkSize(frame.DefaultMaxUnit))
	for _, seg := range segs[:len(segs)-1] {
		require.NoError(t, e.OnSegment(seg))
	}
	return e.OnSegment(segs[len(segs)-1])
}

// drain confirms every indication until the engine is idle and returns the
// segments seen.
func drain(t *testing.T, e *Engine, ft *fakeTransport) [][]byte {
	t.Helper()
	var segs [][]byte
	for i := 0; i <= frame.MaxSeq+1; i++ {
		segs = append(segs, ft.take()...)
		if e.State() == StateIdle {
			return segs
		}
		require.NoError(t, e.OnDeliveryConfirmed())
	}
	t.Fatalf("engine did not return to idle")
	return nil
}

func joinPayloads(segs [][]byte) []byte {
	var out []byte
	for _, s := range segs {
		out = append(out, s[frame.HeaderLen:]...)
	}
	return out
}

func requireZeroed(t *testing.T, e *Engine) {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.Equal(t, make([]byte, len(e.inbound)), e.inbound)
	require.Equal(t, make([]byte, len(e.outbound)), e.outbound)
	require.Equal(t, StateIdle, e.state)
	require.Zero(t, e.inLen)
	require.Zero(t, e.outLen)
	require.Zero(t, e.packet)
	require.False(t, e.pending)
	require.Nil(t, e.nack)
}

func nack(service uint8, id uint16, code protocol.ResultCode) []byte {
	return frame.EncodeNack(service, id, uint8(code), code == protocol.ResultCancel)
}

func TestGetDeviceInformationScenario(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)

	require.NoError(t, e.OnSegment([]byte{0x01, byte(protocol.ServicePropertyInfo), 0x00, 0x00, 0x00}))
	require.Equal(t, StateIndicating, e.State())

	first := ft.take()
	require.Len(t, first, 1)
	require.Equal(t, byte(0x80), first[0][0])
	require.Len(t, first[0], frame.DefaultMaxUnit)

	require.NoError(t, e.OnDeliveryConfirmed())
	second := ft.take()
	require.Len(t, second, 1)
	require.Equal(t, byte(0x83), second[0][0])

	require.NoError(t, e.OnDeliveryConfirmed())
	requireZeroed(t, e)

	resp := joinPayloads(append(first, second...))
	msg, err := protocol.ParseMessage(resp)
	require.NoError(t, err)
	require.Equal(t, protocol.ServicePropertyInfo, msg.Service)
	require.Equal(t, schema.PISMsgGetDeviceInformationResp, msg.MessageID)
	fields, err := tlv.DecodeFields(msg.Params, msg.ParamCount)
	require.NoError(t, err)
	require.Len(t, fields, 5)
	require.Equal(t, []byte{0x1F}, fields[1].Value)
	require.Equal(t, []byte{0x02, 0x01}, fields[2].Value)
	require.Equal(t, []byte{0x06, 0x05, 0x04, 0x03}, fields[3].Value)
	require.Equal(t, []byte{schema.CapabilityAccelerator}, fields[4].Value)
}

func TestSingleSegmentDispatchRunsOnce(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)

	msg := tlv.AppendMessageHeader(nil, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingInformation, 0)
	require.NoError(t, writeMessage(t, e, msg))
	require.Equal(t, 1, app.settings)
	require.Empty(t, ft.take())
	requireZeroed(t, e)

	app.code = protocol.ResultFailed
	err := writeMessage(t, e, msg)
	require.ErrorIs(t, err, protocol.ErrApplicationRejected)
	require.Equal(t, 2, app.settings)
	segs := drain(t, e, ft)
	require.Equal(t, [][]byte{nack(byte(protocol.ServiceSettingOperation), schema.SOSMsgGetSettingInformation, protocol.ResultFailed)}, segs)
	requireZeroed(t, e)
}

func notifyInformation(ledLen int) []byte {
	params := tlv.AppendUint16(nil, schema.NSTagNotifyCategory, schema.CategoryMail)
	params = tlv.AppendUint16(params, schema.NSTagUniqueID, 9)
	params = tlv.AppendUint16(params, schema.NSTagParameterIDList, 1)
	led := make([]byte, ledLen)
	for i := range led {
		led[i] = byte(i + 1)
	}
	params, _ = tlv.AppendOpaque(params, schema.NSTagLEDPattern, led)
	msg := tlv.AppendMessageHeader(nil, protocol.ServiceNotification, schema.NSMsgNotifyInformation, 4)
	return append(msg, params...)
}

func TestReassemblyPreservesOrderAndLength(t *testing.T) {
	testlog.Start(t)
	chunk := frame.ChunkSize(frame.DefaultMaxUnit)
	for k := 2; k <= 5; k++ {
		e, ft, app := newTestEngine(t)
		msg := notifyInformation(chunk*k - 26)
		require.Len(t, msg, chunk*k)

		segs := peerSegments(msg, chunk)
		require.Len(t, segs, k)
		for i, seg := range segs[:k-1] {
			require.NoError(t, e.OnSegment(seg))
			require.Equal(t, StateWriting, e.State())
			e.mu.Lock()
			require.Equal(t, msg[:(i+1)*chunk], e.inbound[:e.inLen])
			require.Equal(t, uint8(i), e.seq)
			e.mu.Unlock()
		}
		require.NoError(t, e.OnSegment(segs[k-1]))

		require.Len(t, app.notifications, 1, "k=%d", k)
		require.Equal(t, msg[len(msg)-(chunk*k-26):], app.notifications[0].Info.LEDPattern)
		require.Empty(t, ft.take())
		requireZeroed(t, e)
	}
}

func TestReassemblyAcceptsUnevenSegments(t *testing.T) {
	testlog.Start(t)
	e, _, app := newTestEngine(t)
	msg := notifyInformation(40)
	for _, seg := range peerSegments(msg, 7) {
		require.NoError(t, e.OnSegment(seg))
	}
	require.Len(t, app.notifications, 1)
	require.Len(t, app.notifications[0].Info.LEDPattern, 40)
}

func TestResetIsIdempotent(t *testing.T) {
	testlog.Start(t)
	e, _, _ := newTestEngine(t)
	segs := peerSegments(notifyInformation(30), frame.ChunkSize(frame.DefaultMaxUnit))
	require.NoError(t, e.OnSegment(segs[0]))
	require.Equal(t, StateWriting, e.State())

	e.Reset()
	first := e.Snapshot()
	requireZeroed(t, e)
	e.Reset()
	require.Equal(t, first, e.Snapshot())
	requireZeroed(t, e)
}

func TestSegmenterSplitsResponses(t *testing.T) {
	testlog.Start(t)
	chunk := frame.ChunkSize(frame.DefaultMaxUnit)
	for _, n := range []int{1, 18, 19, 20, 38, 39, 40, 95, 100, 608} {
		e, ft, _ := newTestEngine(t)
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		e.mu.Lock()
		copy(e.outbound, data)
		require.NoError(t, e.beginIndicationLocked(n))
		e.mu.Unlock()

		segs := drain(t, e, ft)
		want := (n + chunk - 1) / chunk
		require.Len(t, segs, want, "n=%d", n)
		for i, seg := range segs {
			h := frame.ParseHeader(seg[0])
			require.True(t, h.FromDevice)
			require.False(t, h.Cancel)
			require.Equal(t, uint8(i), h.Seq)
			require.Equal(t, i == want-1, h.Execute, "n=%d seg=%d", n, i)
			if i < want-1 {
				require.Len(t, seg, frame.DefaultMaxUnit)
			}
		}
		require.Equal(t, data, joinPayloads(segs))
		requireZeroed(t, e)
	}
}

func TestSourceBitIsRejected(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)
	err := e.OnSegment([]byte{0x81, byte(protocol.ServiceSettingOperation), 0x04, 0x00, 0x00})
	require.ErrorIs(t, err, protocol.ErrProtocolViolation)
	require.Zero(t, app.settings)

	segs := drain(t, e, ft)
	require.Equal(t, [][]byte{{0x81, 0x04, 0x04, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x05}}, segs)
	requireZeroed(t, e)
}

func TestCancelMidWriting(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)
	segs := peerSegments(notifyInformation(30), frame.ChunkSize(frame.DefaultMaxUnit))
	require.NoError(t, e.OnSegment(segs[0]))

	err := e.OnSegment([]byte{0x41, byte(protocol.ServiceNotification), 0x02, 0x00})
	require.ErrorIs(t, err, protocol.ErrCancelled)
	require.Equal(t, StateIndicating, e.State())

	sent := drain(t, e, ft)
	require.Equal(t, [][]byte{{0xC1, 0x01, 0x02, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x01}}, sent)
	requireZeroed(t, e)

	for _, seg := range segs {
		require.NoError(t, e.OnSegment(seg))
	}
	require.Len(t, app.notifications, 1)
	requireZeroed(t, e)
}

func TestCancelWhileIndicating(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	require.NoError(t, e.StartApplication(services.StartApplication{
		Package:   []byte("pkg"),
		NotifyApp: []byte("notify"),
		Class:     []byte("cls"),
	}))
	first := ft.take()
	require.Len(t, first, 1)
	require.False(t, frame.ParseHeader(first[0][0]).Execute)
	require.Equal(t, StateIndicating, e.State())

	err := e.OnSegment([]byte{0x41, byte(protocol.ServiceNotification), 0x06, 0x00})
	require.ErrorIs(t, err, protocol.ErrCancelled)

	sent := drain(t, e, ft)
	require.Equal(t, [][]byte{nack(byte(protocol.ServiceNotification), 0x0006, protocol.ResultCancel)}, sent)
	require.Equal(t, byte(0xC1), sent[0][0])
	requireZeroed(t, e)
}

func TestSourceBitMidWritingDiscardsAssembly(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)
	segs := peerSegments(notifyInformation(30), frame.ChunkSize(frame.DefaultMaxUnit))
	require.NoError(t, e.OnSegment(segs[0]))
	require.Equal(t, StateWriting, e.State())

	err := e.OnSegment([]byte{0x81, byte(protocol.ServiceNotification), 0x02, 0x00})
	require.ErrorIs(t, err, protocol.ErrProtocolViolation)

	sent := drain(t, e, ft)
	require.Equal(t, [][]byte{nack(byte(protocol.ServiceNotification), 0x0002, protocol.ResultNotSupport)}, sent)
	requireZeroed(t, e)
	require.Empty(t, app.notifications)

	for _, seg := range segs {
		require.NoError(t, e.OnSegment(seg))
	}
	require.Len(t, app.notifications, 1)
	requireZeroed(t, e)
}

func TestCancelWhileIdleIsProcessed(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	require.NoError(t, e.OnSegment([]byte{0x41, 0x00, 0x00, 0x00, 0x00}))
	segs := drain(t, e, ft)
	require.Len(t, segs, 2)
	require.Equal(t, byte(0x80), segs[0][0])
}

func TestParameterLengthMismatchNacksNoData(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)
	msg := tlv.AppendMessageHeader(nil, protocol.ServiceSensorInfo, schema.SISMsgSetNotifySensorInfo, 2)
	msg = tlv.AppendUint8(msg, schema.SISTagSensorType, uint8(services.SensorTemperature))
	msg = tlv.AppendUint16(msg, schema.SISTagStatus, uint16(services.SensorStatusOn))

	err := writeMessage(t, e, msg)
	require.ErrorIs(t, err, tlv.ErrLengthMismatch)
	require.Zero(t, app.sensors)
	segs := drain(t, e, ft)
	require.Equal(t, [][]byte{nack(byte(protocol.ServiceSensorInfo), schema.SISMsgSetNotifySensorInfo, protocol.ResultNoData)}, segs)
}

func TestTruncatedMessageEchoesZeroFilledHeader(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	err := e.OnSegment([]byte{0x01, 0x03, 0x02})
	require.ErrorIs(t, err, protocol.ErrTruncated)
	segs := drain(t, e, ft)
	require.Equal(t, [][]byte{{0x81, 0x03, 0x02, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x04}}, segs)
}

func TestInboundOverflowNacksFailed(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	payload := make([]byte, frame.ChunkSize(frame.DefaultMaxUnit))
	payload[0] = byte(protocol.ServiceSensorInfo)
	for i := 0; i < 5; i++ {
		require.NoError(t, e.OnSegment(frame.EncodeSegment(frame.Header{Seq: uint8(i)}, payload)))
	}
	err := e.OnSegment(frame.EncodeSegment(frame.Header{Seq: 5}, payload))
	require.ErrorIs(t, err, ErrBufferOverflow)
	segs := drain(t, e, ft)
	require.Equal(t, [][]byte{nack(byte(protocol.ServiceSensorInfo), 0, protocol.ResultFailed)}, segs)
	requireZeroed(t, e)
}

func TestBusyWhileTransactionActive(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	segs := peerSegments(notifyInformation(30), frame.ChunkSize(frame.DefaultMaxUnit))
	require.NoError(t, e.OnSegment(segs[0]))
	require.ErrorIs(t, e.NotifyOperation(services.ButtonEnter), ErrBusy)
	e.Reset()

	require.NoError(t, e.OnSegment([]byte{0x01, 0x00, 0x00, 0x00, 0x00}))
	require.ErrorIs(t, e.OnSegment([]byte{0x01, 0x00, 0x00, 0x00, 0x00}), ErrBusy)
	require.ErrorIs(t, e.NotifyOperation(services.ButtonEnter), ErrBusy)
	require.Len(t, drain(t, e, ft), 2)
}

func TestNotifyOperationSendFailureStaysIndicating(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	ft.err = errors.New("link down")

	err := e.NotifyOperation(services.ButtonPlay)
	require.ErrorContains(t, err, "link down")
	snap := e.Snapshot()
	require.Equal(t, StateIndicating, snap.State)
	require.True(t, snap.DeliveryPending)
	require.ErrorIs(t, e.NotifyOperation(services.ButtonPlay), ErrBusy)

	e.OnIndicationTimeout()
	requireZeroed(t, e)

	ft.err = nil
	require.NoError(t, e.NotifyOperation(services.ButtonPlay))
	segs := drain(t, e, ft)
	require.Equal(t, [][]byte{{0x81, byte(protocol.ServiceOperation), 0x00, 0x00, 0x01, schema.OSTagButtonID, 0x01, 0x00, 0x00, byte(services.ButtonPlay)}}, segs)
}

func TestNotifySensorEncodesVector(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	require.NoError(t, e.NotifySensor(services.SensorAccelerometer, services.Vector{X: 1, Y: 2, Z: 3}, 0))
	resp := joinPayloads(drain(t, e, ft))
	msg, err := protocol.ParseMessage(resp)
	require.NoError(t, err)
	require.Equal(t, schema.SISMsgNotifySensorInfo, msg.MessageID)
	require.Equal(t, uint8(4), msg.ParamCount)

	require.ErrorIs(t, e.NotifySensor(services.SensorType(40), services.Vector{}, 0), services.ErrInvalidSensor)
	requireZeroed(t, e)
}

func TestDeferredSettingResponse(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)
	msg := tlv.AppendMessageHeader(nil, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingInformation, 0)
	require.NoError(t, writeMessage(t, e, msg))
	require.Equal(t, 1, app.settings)
	require.Equal(t, StateIdle, e.State())

	info := &services.SettingInfo{ID: services.SettingLED, LED: services.LEDSetting{ColorNum: 3, ColorSelected: 1, PatternNum: 2, PatternSelected: 1}}
	require.NoError(t, e.SettingInfoResponse(protocol.ResultOK, info))
	resp := joinPayloads(drain(t, e, ft))
	out, err := protocol.ParseMessage(resp)
	require.NoError(t, err)
	require.Equal(t, schema.SOSMsgGetSettingInformationResp, out.MessageID)

	require.NoError(t, e.SelectSettingResponse(protocol.ResultOK))
	require.Len(t, drain(t, e, ft), 1)
}

func TestOversizedResponseRejected(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	err := e.SettingNameResponse(protocol.ResultOK, make([]byte, DefaultLimits().OutboundCapacity()))
	require.ErrorIs(t, err, ErrBufferOverflow)
	require.Empty(t, ft.take())
	requireZeroed(t, e)
}

func TestNotifyDetailFetchRoundTrip(t *testing.T) {
	testlog.Start(t)
	e, ft, app := newTestEngine(t)
	require.ErrorIs(t, e.GetNotifyDetailData(9, schema.NSTagInvalid, 1), ErrInvalidParamID)

	require.NoError(t, e.GetNotifyDetailData(9, schema.NSTagTitle, 32))
	require.Len(t, drain(t, e, ft), 2)
	require.True(t, e.Snapshot().PendingFetch)

	msg := tlv.AppendMessageHeader(nil, protocol.ServiceNotification, schema.NSMsgGetNotifyDetailDataResp, 3)
	msg = tlv.AppendUint8(msg, schema.NSTagResultCode, uint8(protocol.ResultOK))
	msg = tlv.AppendUint16(msg, schema.NSTagUniqueID, 9)
	msg, _ = tlv.AppendOpaque(msg, schema.NSTagTitle, []byte("hello"))
	require.NoError(t, writeMessage(t, e, msg))

	require.Len(t, app.notifications, 1)
	require.Equal(t, []byte("hello"), app.notifications[0].Detail.Data)
	require.False(t, e.Snapshot().PendingFetch)
	requireZeroed(t, e)

	err := writeMessage(t, e, msg)
	require.ErrorIs(t, err, services.ErrNoPendingFetch)
	require.Equal(t, [][]byte{nack(byte(protocol.ServiceNotification), schema.NSMsgGetNotifyDetailDataResp, protocol.ResultNoData)}, drain(t, e, ft))
}

func TestStrayConfirmationIgnored(t *testing.T) {
	testlog.Start(t)
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.OnDeliveryConfirmed())
	requireZeroed(t, e)
	e.OnIndicationTimeout()
	requireZeroed(t, e)
}

func TestIndicationTimeoutDuringWriting(t *testing.T) {
	testlog.Start(t)
	e, _, _ := newTestEngine(t)
	segs := peerSegments(notifyInformation(30), frame.ChunkSize(frame.DefaultMaxUnit))
	require.NoError(t, e.OnSegment(segs[0]))
	e.OnIndicationTimeout()
	requireZeroed(t, e)
}

func TestShortWriteDropped(t *testing.T) {
	testlog.Start(t)
	e, ft, _ := newTestEngine(t)
	require.ErrorIs(t, e.OnSegment([]byte{0x01}), frame.ErrShortSegment)
	require.Empty(t, ft.take())
	requireZeroed(t, e)
}
