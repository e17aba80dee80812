package jkbms

import "time"

// memTransport 内存 Transport，记录读取与清空次数
type memTransport struct {
	buf       []byte
	sent      [][]byte
	bytesRead int
	discards  int
	readErr   error
	sendErr   error
}

func newMemTransport(b []byte) *memTransport {
	return &memTransport{buf: append([]byte(nil), b...)}
}

func (m *memTransport) Send(cmd []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, append([]byte(nil), cmd...))
	return nil
}

func (m *memTransport) Buffered() int { return len(m.buf) }

func (m *memTransport) ReadExact(n int) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if n > len(m.buf) {
		n = len(m.buf)
	}
	out := m.buf[:n:n]
	m.buf = m.buf[n:]
	m.bytesRead += n
	return out, nil
}

func (m *memTransport) DiscardInput() {
	m.buf = nil
	m.discards++
}

// testDecoder 测试用解码器：宽限期内执行 during 而不真正等待
func testDecoder(during func()) *Decoder {
	return &Decoder{
		Grace: DefaultGrace,
		sleep: func(time.Duration) {
			if during != nil {
				during()
			}
		},
	}
}
