package jkbms

import (
	"encoding/binary"
	"time"
)

const (
	// DefaultGrace 长度不符时的一次性等待
	DefaultGrace = 100 * time.Millisecond
	// DefaultSettle 下发指令后等待设备开始应答
	DefaultSettle = 100 * time.Millisecond
	// DefaultReadTimeout Transport 单次读取的超时
	DefaultReadTimeout = 200 * time.Millisecond
)

// Transport 串口等字节通道。打开、关闭与波特率配置由调用方负责。
type Transport interface {
	// Send 原样写出指令
	Send(cmd []byte) error
	// Buffered 当前已缓冲可读的字节数（非阻塞）
	Buffered() int
	// ReadExact 在读超时内最多返回 n 字节；不足 n 字节由调用方判断
	ReadExact(n int) ([]byte, error)
	// DiscardInput 丢弃未读字节，使下一次轮询从干净的帧边界开始
	DiscardInput()
}

// Decoder 帧解码器。除配置外无状态，可复用。
type Decoder struct {
	Grace time.Duration

	sleep func(time.Duration)
}

// NewDecoder 创建解码器
func NewDecoder() *Decoder {
	return &Decoder{Grace: DefaultGrace, sleep: time.Sleep}
}

// Decode 从 Transport 读取一帧应答并解码。
// 任一失败路径都会清空输入缓冲，且不返回部分字段。
func (d *Decoder) Decode(t Transport) (BatteryStatus, error) {
	st, _, err := d.DecodeRaw(t)
	return st, err
}

// DecodeRaw 同 Decode，额外返回重建的原始帧（校验失败时也返回，便于排查）
func (d *Decoder) DecodeRaw(t Transport) (_ BatteryStatus, frame []byte, err error) {
	// 成功与失败都清空输入缓冲
	defer t.DiscardInput()

	// AwaitHeader 之前：连 magic+len 都不够，视为设备未应答
	if n := t.Buffered(); n < minFrameHead {
		return BatteryStatus{}, nil, newError(KindTimeout, ErrTransportTimeout, "%d bytes buffered, need %d", n, minFrameHead)
	}

	// AwaitHeader：逐字节比对 magic，不多读
	for i := 0; i < headerLen; i++ {
		b, err := t.ReadExact(1)
		if err != nil {
			return BatteryStatus{}, nil, TransportError("read header", err)
		}
		if len(b) < 1 {
			return BatteryStatus{}, nil, newError(KindTimeout, ErrTransportTimeout, "header byte %d not received", i)
		}
		if b[0] != magic[i] {
			return BatteryStatus{}, nil, newError(KindFraming, ErrUnexpectedHeaderByte, "byte %d: got 0x%02X, want 0x%02X", i, b[0], magic[i])
		}
	}

	// AwaitLength
	lb, err := t.ReadExact(lengthLen)
	if err != nil {
		return BatteryStatus{}, nil, TransportError("read length", err)
	}
	if len(lb) < lengthLen {
		return BatteryStatus{}, nil, newError(KindFraming, ErrIncompleteFrame, "length field truncated")
	}
	declared := int(binary.BigEndian.Uint16(lb))
	if declared < lengthLen+checksumLen {
		return BatteryStatus{}, nil, newError(KindFraming, ErrIncompleteFrame, "declared length %d too small", declared)
	}
	remaining := declared - lengthLen

	// AwaitPayload：不一致时等待一次宽限期，仍不一致则放弃本帧
	avail := t.Buffered()
	if avail != remaining {
		d.wait()
		avail = t.Buffered()
		if avail != remaining {
			return BatteryStatus{}, nil, newError(KindFraming, ErrIncompleteFrame, "declared %d bytes, %d buffered", remaining, avail)
		}
	}
	payload, err := t.ReadExact(remaining)
	if err != nil {
		return BatteryStatus{}, nil, TransportError("read payload", err)
	}
	if len(payload) < remaining {
		return BatteryStatus{}, nil, newError(KindFraming, ErrIncompleteFrame, "read %d of %d bytes", len(payload), remaining)
	}

	// Verify：重建 magic + len 参与校验
	frame = make([]byte, 0, minFrameHead+remaining)
	frame = append(frame, magic...)
	frame = binary.BigEndian.AppendUint16(frame, uint16(declared))
	frame = append(frame, payload...)

	st, err := decodeFrame(frame, declared)
	if err != nil {
		return BatteryStatus{}, frame, err
	}
	return st, frame, nil
}

func (d *Decoder) wait() {
	if d.Grace <= 0 {
		return
	}
	sleep := d.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(d.Grace)
}
