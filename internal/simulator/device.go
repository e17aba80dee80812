package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/taoyao-code/jkbms-gateway/internal/protocol/jkbms"
)

// Scheme 配置中以 sim:// 开头的设备路径使用模拟器
const Scheme = "sim://"

var ErrClosed = errors.New("simulator: device closed")

// Fault 注入的故障类型
type Fault int

const (
	FaultNone     Fault = iota
	FaultHeader         // 帧头错误
	FaultChecksum       // 数据区单比特翻转
	FaultTruncate       // 截断帧尾
	FaultSilent         // 不应答
	FaultShape          // 单体字节数非 3 的倍数（校验和仍正确）
)

var faultNames = map[string]Fault{
	"":         FaultNone,
	"none":     FaultNone,
	"header":   FaultHeader,
	"checksum": FaultChecksum,
	"truncate": FaultTruncate,
	"silent":   FaultSilent,
	"shape":    FaultShape,
}

func (f Fault) String() string {
	for name, v := range faultNames {
		if v == f && name != "" {
			return name
		}
	}
	return "unknown"
}

// ParseFault 解析故障名称
func ParseFault(s string) (Fault, error) {
	f, ok := faultNames[strings.ToLower(s)]
	if !ok {
		return FaultNone, fmt.Errorf("simulator: unknown fault %q", s)
	}
	return f, nil
}

// Device 模拟 JK BMS：收到查询指令后把应答帧放入接收缓冲，实现 jkbms.Transport
type Device struct {
	mu     sync.Mutex
	status jkbms.BatteryStatus
	fault  Fault
	buf    []byte
	closed bool
	polls  int
}

var _ jkbms.Transport = (*Device)(nil)

// New 创建模拟设备
func New(st jkbms.BatteryStatus) *Device {
	return &Device{status: st.Clone()}
}

// Open 按 sim://?fault=checksum 形式的路径创建模拟设备
func Open(path string) (*Device, error) {
	if !strings.HasPrefix(path, Scheme) {
		return nil, fmt.Errorf("simulator: path %q is not %s", path, Scheme)
	}
	u, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: parse path: %w", err)
	}
	f, err := ParseFault(u.Query().Get("fault"))
	if err != nil {
		return nil, err
	}
	d := New(DefaultStatus())
	d.SetFault(f)
	return d, nil
}

// DefaultStatus 8 串磷酸铁锂电池包的典型读数
func DefaultStatus() jkbms.BatteryStatus {
	return jkbms.BatteryStatus{
		CellCount:     8,
		CellVoltages:  []int{3312, 3310, 3315, 3311, 3309, 3314, 3313, 3310},
		TempFET:       27,
		TempProbe1:    24,
		TempProbe2:    23,
		PackVoltage:   2649,
		Current:       -420,
		StateOfCharge: 76,
	}
}

func (d *Device) SetStatus(st jkbms.BatteryStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = st.Clone()
}

func (d *Device) SetFault(f Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = f
}

// Polls 收到的有效查询次数
func (d *Device) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// Send 仅应答固定查询指令，其它指令静默忽略
func (d *Device) Send(cmd []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !bytes.Equal(cmd, jkbms.PollCommand) {
		return nil
	}
	d.polls++
	raw, err := jkbms.BuildResponse(d.status)
	if err != nil {
		return fmt.Errorf("simulator: build response: %w", err)
	}
	d.buf = append(d.buf, inject(raw, d.fault)...)
	return nil
}

func (d *Device) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

func (d *Device) ReadExact(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	n = min(n, len(d.buf))
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out, nil
}

func (d *Device) DiscardInput() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.buf = nil
	return nil
}

// Reopen 重新打开（模拟拔插串口）
func (d *Device) Reopen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
	d.buf = nil
	return nil
}

// inject 按故障类型改写应答帧
func inject(raw []byte, f Fault) []byte {
	switch f {
	case FaultHeader:
		raw[0] = 0x00
	case FaultChecksum:
		raw[len(raw)/2] ^= 0x01
	case FaultTruncate:
		raw = raw[:len(raw)-10]
	case FaultSilent:
		return nil
	case FaultShape:
		raw[12]++ // 数据区 byte count
		sum := jkbms.Checksum16(raw[:len(raw)-2])
		raw[len(raw)-2], raw[len(raw)-1] = byte(sum>>8), byte(sum)
	}
	return raw
}
