package jkbms

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomStatus(r *rand.Rand, cells int) BatteryStatus {
	st := BatteryStatus{
		CellCount:     cells,
		CellVoltages:  make([]int, cells),
		PackVoltage:   r.Intn(0x10000),
		StateOfCharge: r.Intn(MaxSOC + 1),
	}
	for i := range st.CellVoltages {
		st.CellVoltages[i] = 2500 + r.Intn(1200)
	}
	// 温度覆盖 <100 与 >100 两种编码
	temp := func() int {
		if r.Intn(2) == 0 {
			return r.Intn(100)
		}
		return -1 - r.Intn(60)
	}
	st.TempFET, st.TempProbe1, st.TempProbe2 = temp(), temp(), temp()
	st.Current = r.Intn(2*0x7FFF+1) - 0x7FFF
	return st
}

func TestDecode_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for cells := 0; cells <= 24; cells++ {
		for n := 0; n < 8; n++ {
			want := randomStatus(r, cells)
			raw, err := BuildResponse(want)
			require.NoError(t, err)

			tr := newMemTransport(raw)
			got, err := testDecoder(nil).Decode(tr)
			require.NoErrorf(t, err, "cells=%d", cells)
			require.Equal(t, want, got)
			assert.Equal(t, 0, tr.Buffered())
			assert.Equal(t, 1, tr.discards)

			parsed, err := ParseFrame(raw)
			require.NoError(t, err)
			require.Equal(t, want, parsed)
		}
	}
}

func TestDecode_FourCells(t *testing.T) {
	tr := newMemTransport(fourCellFrame(t))
	st, frame, err := testDecoder(nil).DecodeRaw(tr)
	require.NoError(t, err)
	assert.Equal(t, fourCellStatus(), st)
	assert.Equal(t, fourCellFrame(t), frame)
}

func TestDecode_SingleBitFlip(t *testing.T) {
	raw, err := BuildResponse(fourCellStatus())
	require.NoError(t, err)

	// 单比特翻转使累加和变化 ±2^k（k<8），低 16 位不可能相同；magic 与长度字段除外
	for i := minFrameHead; i < len(raw)-checksumLen; i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), raw...)
			flipped[i] ^= 1 << bit

			tr := newMemTransport(flipped)
			st, err := testDecoder(nil).Decode(tr)
			require.ErrorIsf(t, err, ErrChecksumMismatch, "byte %d bit %d", i, bit)
			require.Equal(t, BatteryStatus{}, st)
			require.Equal(t, 0, tr.Buffered())
		}
	}
}

func TestDecode_HeaderRejection(t *testing.T) {
	tests := []struct {
		name      string
		prefix    []byte
		bytesRead int
	}{
		{name: "首字节错误", prefix: []byte{0x00, 0x57}, bytesRead: 1},
		{name: "第二字节错误", prefix: []byte{0x4E, 0x00}, bytesRead: 2},
		{name: "反序", prefix: []byte{0x57, 0x4E}, bytesRead: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fourCellFrame(t)
			copy(raw, tt.prefix)
			tr := newMemTransport(raw)

			_, err := testDecoder(nil).Decode(tr)
			require.ErrorIs(t, err, ErrUnexpectedHeaderByte)
			assert.Equal(t, KindFraming, KindOf(err))
			assert.True(t, Retryable(err))
			assert.Equal(t, tt.bytesRead, tr.bytesRead)
			assert.Equal(t, 0, tr.Buffered())
		})
	}
}

func TestDecode_IncompleteFrame(t *testing.T) {
	raw := fourCellFrame(t)
	tr := newMemTransport(raw[:len(raw)-10])

	waited := 0
	_, err := testDecoder(func() { waited++ }).Decode(tr)
	require.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Equal(t, KindFraming, KindOf(err))
	assert.Equal(t, 1, waited)
	assert.Equal(t, 0, tr.Buffered())
	assert.Equal(t, minFrameHead, tr.bytesRead)
}

func TestDecode_ExtraBytes(t *testing.T) {
	raw := append(fourCellFrame(t), 0x4E, 0x57)
	tr := newMemTransport(raw)
	_, err := testDecoder(nil).Decode(tr)
	require.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Equal(t, 0, tr.Buffered())
}

func TestDecode_LateBytesWithinGrace(t *testing.T) {
	raw := fourCellFrame(t)
	tr := newMemTransport(raw[:40])

	st, err := testDecoder(func() { tr.buf = append(tr.buf, raw[40:]...) }).Decode(tr)
	require.NoError(t, err)
	assert.Equal(t, fourCellStatus(), st)
}

func TestDecode_TransportTimeout(t *testing.T) {
	for _, raw := range [][]byte{nil, {0x4E}, {0x4E, 0x57, 0x00}} {
		tr := newMemTransport(raw)
		_, err := testDecoder(nil).Decode(tr)
		require.ErrorIs(t, err, ErrTransportTimeout)
		assert.Equal(t, KindTimeout, KindOf(err))
		assert.Equal(t, 0, tr.bytesRead)
		assert.Equal(t, 1, tr.discards)
	}
}

func TestDecode_TransportError(t *testing.T) {
	cause := errors.New("port closed")
	tr := newMemTransport(fourCellFrame(t))
	tr.readErr = cause

	_, err := testDecoder(nil).Decode(tr)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.False(t, Retryable(err))
	assert.Equal(t, 0, tr.Buffered())

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Error(), "read header")
}

func TestDecode_ShapeDoesNotLeakPartialStatus(t *testing.T) {
	raw := fourCellFrame(t)
	raw[payloadOffset+offCellByteCount] = 14
	tr := newMemTransport(reseal(raw))

	st, err := testDecoder(nil).Decode(tr)
	require.ErrorIs(t, err, ErrUnexpectedFrameShape)
	assert.Equal(t, BatteryStatus{}, st)
	assert.Equal(t, 0, tr.Buffered())
}

func TestBuildResponse_Invalid(t *testing.T) {
	st := fourCellStatus()
	st.CellCount = 5
	_, err := BuildResponse(st)
	require.Error(t, err)

	st = fourCellStatus()
	st.StateOfCharge = 120
	_, err = BuildResponse(st)
	require.Error(t, err)

	st = fourCellStatus()
	st.TempFET = 150
	_, err = BuildResponse(st)
	require.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "shape", KindShape.String())
	assert.Equal(t, "unknown", ErrorKind(0).String())
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
}
