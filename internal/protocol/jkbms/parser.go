package jkbms

import (
	"bytes"
	"encoding/binary"
)

// ParseFrame 解析一帧完整的内存数据（严格校验：magic、长度、checksum），不依赖 Transport。
// 无共享状态，可在多个 goroutine 中对各自的缓冲并发调用。
func ParseFrame(raw []byte) (BatteryStatus, error) {
	if len(raw) < minFrameHead {
		return BatteryStatus{}, newError(KindFraming, ErrIncompleteFrame, "frame too short: %d bytes", len(raw))
	}
	if !bytes.Equal(raw[:headerLen], magic) {
		return BatteryStatus{}, newError(KindFraming, ErrUnexpectedHeaderByte, "got % X", raw[:headerLen])
	}
	declared := int(binary.BigEndian.Uint16(raw[headerLen:minFrameHead]))
	if declared+headerLen != len(raw) {
		return BatteryStatus{}, newError(KindFraming, ErrIncompleteFrame, "declared length %d, frame has %d bytes after header", declared, len(raw)-headerLen)
	}
	return decodeFrame(raw, declared)
}

// decodeFrame 校验并提取；frame 为重建后的完整帧
func decodeFrame(frame []byte, declared int) (BatteryStatus, error) {
	if err := VerifyChecksum(frame); err != nil {
		return BatteryStatus{}, err
	}
	data, err := payloadSlice(frame, declared)
	if err != nil {
		return BatteryStatus{}, err
	}
	return extract(data)
}

// payloadSlice 截取数据区 frame[11 : remaining-19]
func payloadSlice(frame []byte, declared int) ([]byte, error) {
	end := declared - lengthLen - payloadTrailer
	if end < payloadOffset+offCellRecords || end > len(frame) {
		return nil, newError(KindShape, ErrUnexpectedFrameShape, "declared length %d leaves no data region", declared)
	}
	return frame[payloadOffset:end], nil
}

// extract 按固定布局提取字段；任何字段越界都使整个解码失败，不返回部分结果
func extract(data []byte) (BatteryStatus, error) {
	byteCount := int(data[offCellByteCount])
	if byteCount%cellRecordLen != 0 {
		return BatteryStatus{}, newError(KindShape, ErrUnexpectedFrameShape, "cell byte count %d is not a multiple of %d", byteCount, cellRecordLen)
	}
	cellCount := byteCount / cellRecordLen
	if cellCount > MaxCells {
		return BatteryStatus{}, newError(KindShape, ErrUnexpectedFrameShape, "cell count %d exceeds %d", cellCount, MaxCells)
	}
	if len(data) < byteCount+fieldsTail {
		return BatteryStatus{}, newError(KindShape, ErrUnexpectedFrameShape, "data region %d bytes, need %d for %d cells", len(data), byteCount+fieldsTail, cellCount)
	}

	cells := make([]int, cellCount)
	for i := range cells {
		cells[i] = int(skipU16(data, offCellRecords+i*cellRecordLen))
	}

	soc := int(data[byteCount+offSOC])
	if soc > MaxSOC {
		return BatteryStatus{}, newError(KindShape, ErrUnexpectedFrameShape, "state of charge %d out of range", soc)
	}

	return BatteryStatus{
		CellCount:     cellCount,
		CellVoltages:  cells,
		TempFET:       DecodeTemperature(readU16(data, byteCount+offTempFET)),
		TempProbe1:    DecodeTemperature(readU16(data, byteCount+offTempProbe1)),
		TempProbe2:    DecodeTemperature(readU16(data, byteCount+offTempProbe2)),
		PackVoltage:   int(readU16(data, byteCount+offPackVoltage)),
		Current:       DecodeCurrent(readU16(data, byteCount+offCurrent)),
		StateOfCharge: soc,
	}, nil
}

// skipU16 跳过 off 处的记录 ID，读取其后的大端 u16
func skipU16(b []byte, off int) uint16 {
	return readU16(b, off+1)
}

func readU16(b []byte, off int) uint16 {
	return binary.BigEndian.Uint16(b[off : off+2])
}

// DecodeTemperature 温度编码：>=100 表示负温度 -(raw-100)，其余为摄氏度原值
func DecodeTemperature(raw uint16) int {
	if raw >= tempNegativeBase {
		return -(int(raw) - tempNegativeBase)
	}
	return int(raw)
}

// DecodeCurrent 电流偏移编码：>=0x8000 为放电（正），否则为充电（负），单位 0.01A
func DecodeCurrent(raw uint16) int {
	if raw >= currentZero {
		return int(raw) - currentZero
	}
	return -int(raw)
}
