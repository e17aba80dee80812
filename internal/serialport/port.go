package serialport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/logging"
	"github.com/taoyao-code/jkbms-gateway/internal/protocol/jkbms"
)

const (
	// pumpReadTimeout 底层读超时，决定读协程感知关闭与 DiscardInput 等待的最长延迟
	pumpReadTimeout = 50 * time.Millisecond
	pumpChunk       = 256
)

var ErrPortClosed = errors.New("serial port closed")

// rawPort go.bug.st/serial.Port 中本包用到的子集，便于测试替换
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	ResetInputBuffer() error
}

// Port 串口 Transport。后台读协程把收到的字节放入内部缓冲，
// 从而提供非阻塞的 Buffered 计数。
type Port struct {
	device      string
	baudRate    int
	readTimeout time.Duration
	open        func() (rawPort, error)
	log         *zap.Logger

	// readMu 覆盖读协程的一次 Read 及追加，DiscardInput 持有它才清空
	readMu sync.Mutex

	mu     sync.Mutex
	raw    rawPort
	buf    []byte
	err    error
	done   chan struct{}
	dataCh chan struct{}
}

var _ jkbms.Transport = (*Port)(nil)

// Open 以 8N1 打开串口并启动读协程
func Open(cfg cfgpkg.SerialConfig, log *zap.Logger) (*Port, error) {
	return newPort(cfg, log, func() (rawPort, error) { return openSerial(cfg) })
}

func newPort(cfg cfgpkg.SerialConfig, log *zap.Logger, open func() (rawPort, error)) (*Port, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Port{
		device:      cfg.Device,
		baudRate:    cfg.BaudRate,
		readTimeout: cfg.ReadTimeout,
		open:        open,
		log:         log.With(zap.String("device", cfg.Device)),
		dataCh:      make(chan struct{}, 1),
	}
	if p.readTimeout <= 0 {
		p.readTimeout = jkbms.DefaultReadTimeout
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func openSerial(cfg cfgpkg.SerialConfig) (rawPort, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device path is required")
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
			return nil, fmt.Errorf("open %s: %w (is the user in the dialout group?)", cfg.Device, err)
		}
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(pumpReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}

func (p *Port) connect() error {
	raw, err := p.open()
	if err != nil {
		return err
	}
	done := make(chan struct{})
	p.mu.Lock()
	p.raw, p.buf, p.err, p.done = raw, nil, nil, done
	p.mu.Unlock()

	go p.readLoop(raw, done)
	p.log.Info("serial port opened", zap.Int("baud", p.baudRate))
	return nil
}

func (p *Port) readLoop(raw rawPort, done chan struct{}) {
	chunk := make([]byte, pumpChunk)
	for {
		select {
		case <-done:
			return
		default:
		}
		p.readMu.Lock()
		n, err := raw.Read(chunk)
		if n > 0 {
			// 已关闭的旧连接不得写入新连接的缓冲
			select {
			case <-done:
				p.readMu.Unlock()
				return
			default:
			}
			p.mu.Lock()
			p.buf = append(p.buf, chunk[:n]...)
			p.mu.Unlock()
			p.notify()
		}
		p.readMu.Unlock()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			p.notify()
			p.log.Warn("serial read loop stopped", zap.Error(err))
			return
		}
	}
}

func (p *Port) notify() {
	select {
	case p.dataCh <- struct{}{}:
	default:
	}
}

// Send 完整写出指令
func (p *Port) Send(cmd []byte) error {
	p.mu.Lock()
	raw, perr := p.raw, p.err
	p.mu.Unlock()
	if raw == nil {
		return ErrPortClosed
	}
	if perr != nil {
		return fmt.Errorf("serial: %w", perr)
	}
	p.log.Debug("serial send", logging.Hex("data", cmd))
	for len(cmd) > 0 {
		n, err := raw.Write(cmd)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		cmd = cmd[n:]
	}
	return nil
}

func (p *Port) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// ReadExact 等待至多 readTimeout，返回最多 n 字节
func (p *Port) ReadExact(n int) ([]byte, error) {
	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		if len(p.buf) >= n || p.err != nil || p.raw == nil {
			break
		}
		p.mu.Unlock()
		select {
		case <-p.dataCh:
		case <-timer.C:
			p.mu.Lock()
			out := p.takeLocked(n)
			p.mu.Unlock()
			return out, nil
		}
	}
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		if p.raw == nil {
			return nil, ErrPortClosed
		}
		if p.err != nil {
			return nil, p.err
		}
	}
	return p.takeLocked(n), nil
}

// takeLocked 调用方须持有 p.mu
func (p *Port) takeLocked(n int) []byte {
	n = min(n, len(p.buf))
	out := make([]byte, n)
	copy(out, p.buf[:n])
	p.buf = p.buf[n:]
	return out
}

// DiscardInput 清空内部缓冲与驱动层接收缓冲。
// 先等进行中的 Read 落入缓冲（至多 pumpReadTimeout），其字节一并丢弃。
func (p *Port) DiscardInput() {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	p.mu.Lock()
	dropped := len(p.buf)
	p.buf = nil
	raw := p.raw
	p.mu.Unlock()
	if raw != nil {
		if err := raw.ResetInputBuffer(); err != nil {
			p.log.Debug("reset input buffer failed", zap.Error(err))
		}
	}
	if dropped > 0 {
		p.log.Debug("input discarded", zap.Int("bytes", dropped))
	}
}

// Close 停止读协程并关闭串口
func (p *Port) Close() error {
	p.mu.Lock()
	raw, done := p.raw, p.done
	p.raw, p.buf = nil, nil
	p.mu.Unlock()
	if raw == nil {
		return nil
	}
	close(done)
	p.log.Info("serial port closed")
	return raw.Close()
}

// Reopen 关闭后重新打开（连续失败后由调用方触发）
func (p *Port) Reopen() error {
	_ = p.Close()
	return p.connect()
}
