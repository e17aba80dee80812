package jkbms

import (
	"errors"
	"fmt"
)

var (
	ErrTransport            = errors.New("transport unavailable")
	ErrTransportTimeout     = errors.New("transport timeout")
	ErrUnexpectedHeaderByte = errors.New("unexpected header byte")
	ErrIncompleteFrame      = errors.New("incomplete frame")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrUnexpectedFrameShape = errors.New("unexpected frame shape")
)

// ErrorKind 错误大类，决定调用方的处理策略
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1 // 通道不可用，本次轮询失败，调用方决定是否重开串口
	KindTimeout                        // 设备未应答
	KindFraming                        // 帧头/长度异常，下次轮询重试
	KindIntegrity                      // 校验失败，视为线路噪声
	KindShape                          // 协议/固件版本不匹配，重试无效
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindFraming:
		return "framing"
	case KindIntegrity:
		return "integrity"
	case KindShape:
		return "shape"
	default:
		return "unknown"
	}
}

// DecodeError 解码失败的类型化错误。Err 为上面的哨兵错误之一，Cause 为底层错误（可为空）。
type DecodeError struct {
	Kind   ErrorKind
	Err    error
	Detail string
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := "jkbms: " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func newError(kind ErrorKind, sentinel error, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}

// TransportError 包装 Transport 返回的底层错误
func TransportError(op string, cause error) *DecodeError {
	return &DecodeError{Kind: KindTransport, Err: ErrTransport, Detail: op, Cause: cause}
}

// KindOf 返回错误大类；非 DecodeError 返回 0
func KindOf(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// Retryable 是否值得在下一轮询周期重试
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindFraming, KindIntegrity:
		return true
	default:
		return false
	}
}
