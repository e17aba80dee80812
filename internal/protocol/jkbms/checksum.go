package jkbms

import "encoding/binary"

// Checksum16 累加校验（低16位）
func Checksum16(b []byte) uint16 {
	var sum uint32
	for i := 0; i < len(b); i++ {
		sum += uint32(b[i])
	}
	return uint16(sum & 0xFFFF)
}

// VerifyChecksum 校验完整帧：覆盖范围为除末尾 2 字节外的所有字节，末尾 2 字节为大端期望值
func VerifyChecksum(frame []byte) error {
	if len(frame) < minFrameHead+checksumLen {
		return newError(KindFraming, ErrIncompleteFrame, "frame too short for checksum: %d bytes", len(frame))
	}
	got := binary.BigEndian.Uint16(frame[len(frame)-checksumLen:])
	want := Checksum16(frame[:len(frame)-checksumLen])
	if got != want {
		return newError(KindIntegrity, ErrChecksumMismatch, "stored 0x%04X, computed 0x%04X", got, want)
	}
	return nil
}
