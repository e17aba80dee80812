package jkbms

import (
	"encoding/binary"
	"fmt"
)

// tailPadLen 数据区之后、记录号之前的保留寄存器区长度（使 remaining-19 恰好落在 SOC 之后）
const tailPadLen = 14

// BuildCommand 构造读取全部数据的查询帧（与 PollCommand 一致）
func BuildCommand() []byte {
	buf := make([]byte, 0, 21)
	buf = append(buf, magic...)
	buf = append(buf, 0x00, 0x00) // 长度，最后回填
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)
	buf = append(buf, cmdWordReadAll, frameSourceHost, transTypeReq, regReadAll)
	return finish(buf)
}

// BuildResponse 按设备格式构造一帧应答，与 ParseFrame/Decode 对应（用于模拟器与测试）。
func BuildResponse(st BatteryStatus) ([]byte, error) {
	if st.CellCount != len(st.CellVoltages) {
		return nil, fmt.Errorf("cell count %d does not match %d voltages", st.CellCount, len(st.CellVoltages))
	}
	if st.CellCount > MaxCells {
		return nil, fmt.Errorf("cell count %d exceeds %d", st.CellCount, MaxCells)
	}
	if st.StateOfCharge < 0 || st.StateOfCharge > MaxSOC {
		return nil, fmt.Errorf("state of charge %d out of range", st.StateOfCharge)
	}
	temps := make([]uint16, 0, 3)
	for _, t := range []int{st.TempFET, st.TempProbe1, st.TempProbe2} {
		raw, err := EncodeTemperature(t)
		if err != nil {
			return nil, err
		}
		temps = append(temps, raw)
	}
	current, err := EncodeCurrent(st.Current)
	if err != nil {
		return nil, err
	}
	if st.PackVoltage < 0 || st.PackVoltage > 0xFFFF {
		return nil, fmt.Errorf("pack voltage %d out of range", st.PackVoltage)
	}

	byteCount := st.CellCount * cellRecordLen
	buf := make([]byte, 0, payloadOffset+byteCount+fieldsTail+tailPadLen+13)
	buf = append(buf, magic...)
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)
	buf = append(buf, cmdWordReadAll, frameSourceBMS, transTypeResp)

	// 数据区
	buf = append(buf, regCells, byte(byteCount))
	for i, mv := range st.CellVoltages {
		if mv < 0 || mv > 0xFFFF {
			return nil, fmt.Errorf("cell %d voltage %d out of range", i, mv)
		}
		buf = appendRecord(buf, byte(i+1), uint16(mv))
	}
	buf = appendRecord(buf, regTempFET, temps[0])
	buf = appendRecord(buf, regTempProbe1, temps[1])
	buf = appendRecord(buf, regTempProbe2, temps[2])
	buf = appendRecord(buf, regPackVoltage, uint16(st.PackVoltage))
	buf = appendRecord(buf, regCurrent, current)
	buf = append(buf, regSOC, byte(st.StateOfCharge))

	buf = append(buf, make([]byte, tailPadLen)...)
	return finish(buf), nil
}

// finish 追加记录号、结束标志与 4 字节校验，并回填长度
func finish(buf []byte) []byte {
	buf = append(buf, 0x00, 0x00, 0x00, 0x00, endFlag, 0x00, 0x00)
	binary.BigEndian.PutUint16(buf[headerLen:minFrameHead], uint16(len(buf)+checksumLen-headerLen))
	return binary.BigEndian.AppendUint16(buf, Checksum16(buf))
}

func appendRecord(buf []byte, id byte, v uint16) []byte {
	buf = append(buf, id)
	return binary.BigEndian.AppendUint16(buf, v)
}

// EncodeTemperature DecodeTemperature 的逆运算；可表示范围 -(0xFFFF-100)..99
func EncodeTemperature(c int) (uint16, error) {
	switch {
	case c >= 0 && c < tempNegativeBase:
		return uint16(c), nil
	case c < 0 && c >= -(0xFFFF-tempNegativeBase):
		return uint16(tempNegativeBase - c), nil
	default:
		return 0, fmt.Errorf("temperature %d not representable", c)
	}
}

// EncodeCurrent DecodeCurrent 的逆运算；可表示范围 -0x7FFF..0x7FFF
func EncodeCurrent(ca int) (uint16, error) {
	switch {
	case ca >= 0 && ca <= 0xFFFF-currentZero:
		return uint16(currentZero + ca), nil
	case ca < 0 && ca > -currentZero:
		return uint16(-ca), nil
	default:
		return 0, fmt.Errorf("current %d not representable", ca)
	}
}
