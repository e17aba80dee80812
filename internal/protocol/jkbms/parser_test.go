package jkbms

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 4 串电池包真实格式应答：3300/3301/3299/3302 mV，FET 25°C，探头1 110(-10°C)，探头2 30°C，
// 13.20V，放电 1.50A，SOC 87%
const fourCellFrameHex = "4E57003F00000000060001790C010CE4020CE5030CE3040CE6" +
	"80001981006E82001E830528848096855700000000000000000000000000000000000068" +
	"00000AF2"

func fourCellFrame(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(fourCellFrameHex)
	require.NoError(t, err)
	return b
}

func fourCellStatus() BatteryStatus {
	return BatteryStatus{
		CellCount:     4,
		CellVoltages:  []int{3300, 3301, 3299, 3302},
		TempFET:       25,
		TempProbe1:    -10,
		TempProbe2:    30,
		PackVoltage:   1320,
		Current:       150,
		StateOfCharge: 87,
	}
}

func TestParseFrame_FourCells(t *testing.T) {
	st, err := ParseFrame(fourCellFrame(t))
	require.NoError(t, err)
	assert.Equal(t, fourCellStatus(), st)
	assert.InDelta(t, 13.20, st.PackVolts(), 1e-9)
	assert.InDelta(t, 1.50, st.Amps(), 1e-9)
	assert.InDelta(t, 3.300, st.CellVolts(0), 1e-9)
	assert.False(t, st.Charging())
}

func TestBuildResponse_MatchesDeviceFrame(t *testing.T) {
	raw, err := BuildResponse(fourCellStatus())
	require.NoError(t, err)
	assert.Equal(t, fourCellFrame(t), raw)
}

func TestParseFrame_Errors(t *testing.T) {
	good := fourCellFrame(t)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
		kind   ErrorKind
	}{
		{
			name:   "帧头错误",
			mutate: func(b []byte) []byte { b[1] = 0x58; return b },
			want:   ErrUnexpectedHeaderByte,
			kind:   KindFraming,
		},
		{
			name:   "长度不符",
			mutate: func(b []byte) []byte { return b[:len(b)-1] },
			want:   ErrIncompleteFrame,
			kind:   KindFraming,
		},
		{
			name:   "过短",
			mutate: func(b []byte) []byte { return b[:3] },
			want:   ErrIncompleteFrame,
			kind:   KindFraming,
		},
		{
			name:   "校验错误",
			mutate: func(b []byte) []byte { b[20] ^= 0x10; return b },
			want:   ErrChecksumMismatch,
			kind:   KindIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.mutate(append([]byte(nil), good...))
			st, err := ParseFrame(raw)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, BatteryStatus{}, st)
		})
	}
}

// reseal 修改数据区后重新计算校验
func reseal(b []byte) []byte {
	sum := Checksum16(b[:len(b)-2])
	b[len(b)-2], b[len(b)-1] = byte(sum>>8), byte(sum)
	return b
}

func TestParseFrame_Shape(t *testing.T) {
	t.Run("单体字节数非3的倍数", func(t *testing.T) {
		raw := fourCellFrame(t)
		raw[payloadOffset+offCellByteCount] = 13
		_, err := ParseFrame(reseal(raw))
		require.ErrorIs(t, err, ErrUnexpectedFrameShape)
		assert.Equal(t, KindShape, KindOf(err))
		assert.False(t, Retryable(err))
	})

	t.Run("单体数超过上限", func(t *testing.T) {
		raw := fourCellFrame(t)
		raw[payloadOffset+offCellByteCount] = (MaxCells + 1) * cellRecordLen
		_, err := ParseFrame(reseal(raw))
		require.ErrorIs(t, err, ErrUnexpectedFrameShape)
	})

	t.Run("数据区不足", func(t *testing.T) {
		raw := fourCellFrame(t)
		raw[payloadOffset+offCellByteCount] = 8 * cellRecordLen
		_, err := ParseFrame(reseal(raw))
		require.ErrorIs(t, err, ErrUnexpectedFrameShape)
	})

	t.Run("SOC越界", func(t *testing.T) {
		raw := fourCellFrame(t)
		raw[payloadOffset+12+offSOC] = 101
		_, err := ParseFrame(reseal(raw))
		require.ErrorIs(t, err, ErrUnexpectedFrameShape)
	})

	t.Run("长度不足以容纳数据区", func(t *testing.T) {
		raw := []byte{0x4E, 0x57, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00}
		_, err := ParseFrame(reseal(raw))
		require.ErrorIs(t, err, ErrUnexpectedFrameShape)
	})
}

func TestDecodeTemperature(t *testing.T) {
	tests := []struct {
		raw  uint16
		want int
	}{
		{0, 0},
		{60, 60},
		{99, 99},
		{100, 0},
		{101, -1},
		{110, -10},
		{140, -40},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, DecodeTemperature(tt.raw), "raw %d", tt.raw)
	}
}

func TestDecodeCurrent(t *testing.T) {
	tests := []struct {
		raw  uint16
		want int
	}{
		{0x8000, 0},
		{0x8005, 5},
		{0x0005, -5},
		{0x0000, 0},
		{0x8000 + 150, 150},
		{0xFFFF, 0x7FFF},
		{0x7FFF, -0x7FFF},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, DecodeCurrent(tt.raw), "raw 0x%04X", tt.raw)
	}
}

func TestEncodeRoundTrip_Fields(t *testing.T) {
	for c := -200; c < 100; c++ {
		raw, err := EncodeTemperature(c)
		require.NoError(t, err)
		require.Equal(t, c, DecodeTemperature(raw))
	}
	_, err := EncodeTemperature(100)
	require.Error(t, err)

	for _, ca := range []int{-0x7FFF, -1, 0, 1, 150, 0x7FFF} {
		raw, err := EncodeCurrent(ca)
		require.NoError(t, err)
		require.Equal(t, ca, DecodeCurrent(raw))
	}
	_, err = EncodeCurrent(-0x8000)
	require.Error(t, err)
}
