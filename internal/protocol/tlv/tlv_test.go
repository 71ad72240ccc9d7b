package tlv

import (
	"errors"
	"testing"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestAppendMessageHeaderLittleEndian(t *testing.T) {
	testlog.Start(t)
	got := AppendMessageHeader(nil, protocol.ServicePropertyInfo, 0x0102, 5)
	require.Equal(t, []byte{0x00, 0x02, 0x01, 0x05}, got)
}

func TestFixedRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, v := range []uint16{0, 1, 0x00FF, 0x1234, 0xFFFF} {
		b, err := AppendFixed(nil, 7, 2, uint32(v))
		require.NoError(t, err)
		require.Len(t, b, Uint16Len)
		got, n, err := DecodeUint16(b, 7)
		require.NoError(t, err)
		require.Equal(t, Uint16Len, n)
		require.Equal(t, v, got)
	}

	b := AppendUint32(nil, 4, 0xDEADBEEF)
	require.Equal(t, []byte{4, 4, 0, 0, 0xEF, 0xBE, 0xAD, 0xDE}, b)
	v32, _, err := DecodeUint32(b, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v32)

	b = AppendUint8(nil, 0, 5)
	require.Equal(t, []byte{0, 1, 0, 0, 5}, b)
}

func TestDecodeTagMismatchIsNoData(t *testing.T) {
	testlog.Start(t)
	b := AppendUint16(nil, 3, 0x55AA)
	_, _, err := DecodeUint16(b, 4)
	require.ErrorIs(t, err, ErrTagMismatch)
	require.ErrorIs(t, err, protocol.ErrParameterMismatch)
	require.Equal(t, protocol.ResultNoData, protocol.CodeOf(err))
}

func TestDecodeLengthMismatchIsNoData(t *testing.T) {
	testlog.Start(t)
	b := AppendUint8(nil, 3, 1)
	_, _, err := DecodeUint16(b, 3)
	require.ErrorIs(t, err, ErrLengthMismatch)
	require.Equal(t, protocol.ResultNoData, protocol.CodeOf(err))
}

func TestAppendFixedRejectsWidth(t *testing.T) {
	testlog.Start(t)
	_, err := AppendFixed(nil, 1, 3, 0)
	if !errors.Is(err, ErrInvalidWidth) {
		t.Fatalf("expected ErrInvalidWidth, got %v", err)
	}
}

func TestDecodeOpaqueBoundsChecked(t *testing.T) {
	testlog.Start(t)
	b, err := AppendOpaque(nil, 9, []byte("hello"))
	require.NoError(t, err)
	v, n, err := DecodeOpaque(b, 9)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.Equal(t, "hello", string(v))

	// declared length 5 but only 2 value bytes present
	_, _, err = DecodeOpaque(b[:HeaderLen+2], 9)
	require.ErrorIs(t, err, ErrOverrun)

	_, _, err = DecodeOpaque([]byte{9, 0}, 9)
	require.ErrorIs(t, err, ErrShortParameter)
}

func TestDecodeOpaqueViewCannotGrowIntoNextParam(t *testing.T) {
	testlog.Start(t)
	b, _ := AppendOpaque(nil, 1, []byte{0xAA})
	b = AppendUint8(b, 2, 0xBB)
	v, _, err := DecodeOpaque(b, 1)
	require.NoError(t, err)
	require.Equal(t, 1, cap(v))
}

func TestDecodeFieldsCountAndTrailing(t *testing.T) {
	testlog.Start(t)
	b := AppendUint8(nil, 1, 1)
	b = AppendUint16(b, 2, 2)
	fields, err := DecodeFields(b, 2)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Equal(t, uint8(2), fields[1].Tag)

	_, err = DecodeFields(b, 1)
	require.ErrorIs(t, err, ErrOverrun)

	_, err = DecodeFields(b, 3)
	require.ErrorIs(t, err, ErrShortParameter)
}
