package link

import (
	"testing"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/frame"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/danmuck/pdlp/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestLimitsValidate(t *testing.T) {
	testlog.Start(t)
	require.NoError(t, DefaultLimits().Validate())
	require.Equal(t, 100, DefaultLimits().InboundCapacity())
	require.Equal(t, 608, DefaultLimits().OutboundCapacity())

	bad := []Limits{
		{MaxUnit: frame.NackLen - 1, MaxInboundSegments: 5, MaxOutboundSegments: 5},
		{MaxUnit: 20, MaxInboundSegments: 0, MaxOutboundSegments: 5},
		{MaxUnit: 20, MaxInboundSegments: 5, MaxOutboundSegments: 33},
		{MaxUnit: 20, MaxInboundSegments: 5, MaxOutboundSegments: 0},
	}
	for _, l := range bad {
		require.ErrorIs(t, l.Validate(), ErrInvalidLimits, "%+v", l)
	}
}

func TestNewArenaRequiresCollaborators(t *testing.T) {
	testlog.Start(t)
	_, err := NewArena(Config{Limits: DefaultLimits(), Transport: &fakeTransport{}})
	require.ErrorIs(t, err, ErrNoRouter)
	_, err = NewArena(Config{Limits: DefaultLimits(), Router: services.NewRouter()})
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestArenaIsolatesConnections(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{}
	app := &recordingApp{}
	a, err := NewArena(testConfig(app, ft))
	require.NoError(t, err)

	segs := peerSegments(notifyInformation(30), frame.ChunkSize(frame.DefaultMaxUnit))
	require.NoError(t, a.OnSegment(3, segs[0]))
	require.NoError(t, a.OnSegment(2, []byte{0x01, 0x00, 0x00, 0x00, 0x00}))
	require.Equal(t, 2, a.Len())

	snaps := a.Snapshot()
	require.Len(t, snaps, 2)
	require.Equal(t, protocol.ConnHandle(2), snaps[0].Conn)
	require.Equal(t, StateIndicating, snaps[0].State)
	require.Equal(t, protocol.ConnHandle(3), snaps[1].Conn)
	require.Equal(t, StateWriting, snaps[1].State)

	require.NoError(t, a.OnDeliveryConfirmed(2))
	require.NoError(t, a.OnDeliveryConfirmed(2))
	for _, seg := range segs[1:] {
		require.NoError(t, a.OnSegment(3, seg))
	}
	require.Len(t, app.notifications, 1)
	for _, s := range a.Snapshot() {
		require.Equal(t, StateIdle, s.State)
	}
}

func TestArenaDisconnectTearsDown(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{}
	a, err := NewArena(testConfig(&recordingApp{}, ft))
	require.NoError(t, err)

	e, err := a.OnConnected(5)
	require.NoError(t, err)
	again, err := a.OnConnected(5)
	require.NoError(t, err)
	require.Same(t, e, again)

	require.NoError(t, e.OnSegment([]byte{0x01, 0x00, 0x00, 0x00, 0x00}))
	a.OnDisconnected(5)
	a.OnDisconnected(5)
	require.Zero(t, a.Len())
	requireZeroed(t, e)
	require.ErrorIs(t, e.OnSegment([]byte{0x01, 0x00}), ErrClosed)
	require.ErrorIs(t, e.NotifyOperation(services.ButtonHome), ErrClosed)

	require.ErrorIs(t, a.OnDeliveryConfirmed(5), ErrUnknownConnection)
	require.ErrorIs(t, a.OnIndicationTimeout(5), ErrUnknownConnection)
	_, err = a.Lookup(5)
	require.ErrorIs(t, err, ErrUnknownConnection)
}

func TestArenaIndicationTimeout(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{}
	a, err := NewArena(testConfig(&recordingApp{}, ft))
	require.NoError(t, err)
	require.NoError(t, a.OnSegment(1, []byte{0x01, 0x00, 0x00, 0x00, 0x00}))
	require.NoError(t, a.OnIndicationTimeout(1))
	e, err := a.Lookup(1)
	require.NoError(t, err)
	requireZeroed(t, e)
}

func TestDeliverDoesNotReopenClosedConnection(t *testing.T) {
	testlog.Start(t)
	ft := &fakeTransport{}
	a, err := NewArena(testConfig(&recordingApp{}, ft))
	require.NoError(t, err)

	require.ErrorIs(t, a.Deliver(4, []byte{0x01, 0x00, 0x00, 0x00, 0x00}), ErrUnknownConnection)
	require.Zero(t, a.Len())

	_, err = a.OnConnected(4)
	require.NoError(t, err)
	require.NoError(t, a.Deliver(4, []byte{0x01, 0x00, 0x00, 0x00, 0x00}))
	require.Len(t, ft.take(), 1)

	a.OnDisconnected(4)
	require.ErrorIs(t, a.Deliver(4, []byte{0x01, 0x00, 0x00, 0x00, 0x00}), ErrUnknownConnection)
	require.Zero(t, a.Len())
	require.Empty(t, ft.take())
}
