package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/jkbms-gateway/internal/breaker"
	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/logging"
	"github.com/taoyao-code/jkbms-gateway/internal/metrics"
	"github.com/taoyao-code/jkbms-gateway/internal/protocol/jkbms"
)

// ErrSkipped 熔断期内跳过轮询
var ErrSkipped = errors.New("poll skipped")

// Transport 可重开的字节通道（串口或模拟器）
type Transport interface {
	jkbms.Transport
	Reopen() error
}

// Snapshot 一次成功轮询的结果
type Snapshot struct {
	ID     string              `json:"id" yaml:"id"`
	Time   time.Time           `json:"time" yaml:"time"`
	Status jkbms.BatteryStatus `json:"status" yaml:"status"`
}

// Publisher 接收最新读数（如 Redis）；发布失败不影响轮询结果
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Health 轮询健康状况
type Health struct {
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	LastErrorKind       string        `json:"last_error_kind,omitempty"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	Polls               int64         `json:"polls"`
	Breaker             breaker.Stats `json:"breaker"`
}

type pollFailure struct {
	msg  string
	kind jkbms.ErrorKind
}

// Poller 周期性下发查询指令并解码应答。同一时刻只有一次请求/应答在进行。
type Poller struct {
	mu sync.Mutex // 串口独占
	t  Transport

	dec        *jkbms.Decoder
	settle     time.Duration
	limiter    *rate.Limiter
	breaker    *breaker.Breaker
	metrics    *metrics.AppMetrics
	log        *zap.Logger
	publishers []Publisher
	now        func() time.Time
	newID      func() string

	latest      atomic.Pointer[Snapshot]
	lastFailure atomic.Pointer[pollFailure]
	consecutive atomic.Int64
	polls       atomic.Int64
}

type Option func(*Poller)

func WithLogger(log *zap.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(p *Poller) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithPublisher(pubs ...Publisher) Option {
	return func(p *Poller) {
		for _, pub := range pubs {
			if pub != nil {
				p.publishers = append(p.publishers, pub)
			}
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// New 按轮询配置创建 Poller
func New(t Transport, cfg cfgpkg.PollConfig, opts ...Option) *Poller {
	dec := jkbms.NewDecoder()
	dec.Grace = cfg.Grace

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	p := &Poller{
		t:       t,
		dec:     dec,
		settle:  cfg.Settle,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		breaker: breaker.New(cfg.BreakerThreshold, cfg.BreakerTimeout),
		log:     zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.NewAppMetrics(prometheus.NewRegistry())
	}
	p.breaker.OnStateChange(func(from, to breaker.State) {
		p.metrics.BreakerState.Set(float64(to))
		p.log.Warn("poll breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	})
	return p
}

// Run 按间隔轮询直到 ctx 结束
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started", zap.Float64("rate_hz", float64(p.limiter.Limit())))
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				p.log.Info("poller stopped")
				return nil
			}
			return fmt.Errorf("poll limiter: %w", err)
		}
		_, _ = p.Poll(ctx)
	}
}

// Poll 执行一次完整的请求/应答交换
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	if err := p.breaker.Allow(); err != nil {
		p.metrics.PollTotal.WithLabelValues("skipped").Inc()
		return Snapshot{}, fmt.Errorf("%w: %w", ErrSkipped, err)
	}
	p.polls.Add(1)
	start := p.now()

	st, frame, err := p.exchange(ctx)
	p.metrics.PollDuration.Observe(p.now().Sub(start).Seconds())

	if canceled(err) {
		// 调用方放弃，不代表设备故障
		p.breaker.Cancel()
		p.log.Debug("bms poll canceled", zap.Error(err))
		return Snapshot{}, err
	}
	if p.breaker.Record(breakerError(err)) {
		p.reopen()
	}
	if err != nil {
		p.onFailure(err, frame)
		return Snapshot{}, err
	}

	snap := Snapshot{ID: p.newID(), Time: start, Status: st}
	p.latest.Store(&snap)
	p.consecutive.Store(0)
	p.lastFailure.Store(nil)

	p.metrics.PollTotal.WithLabelValues("ok").Inc()
	p.metrics.FrameBytes.Add(float64(len(frame)))
	p.metrics.LastSuccess.Set(float64(start.Unix()))
	p.metrics.ObserveStatus(st)
	p.log.Debug("bms status decoded",
		zap.String("poll_id", snap.ID),
		zap.Int("cells", st.CellCount),
		zap.Float64("pack_v", st.PackVolts()),
		zap.Float64("current_a", st.Amps()),
		zap.Int("soc", st.StateOfCharge))

	p.publish(ctx, snap)
	return snap, nil
}

func (p *Poller) exchange(ctx context.Context) (jkbms.BatteryStatus, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 清掉上次被取消的轮询迟到的应答
	p.t.DiscardInput()
	if err := p.t.Send(jkbms.PollCommand); err != nil {
		p.t.DiscardInput()
		return jkbms.BatteryStatus{}, nil, jkbms.TransportError("send", err)
	}
	if err := sleepCtx(ctx, p.settle); err != nil {
		p.t.DiscardInput()
		return jkbms.BatteryStatus{}, nil, err
	}
	return p.dec.DecodeRaw(p.t)
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// breakerError 帧形状错误说明设备在应答，重开串口无济于事，按链路正常计
func breakerError(err error) error {
	if jkbms.KindOf(err) == jkbms.KindShape {
		return nil
	}
	return err
}

func (p *Poller) onFailure(err error, frame []byte) {
	kind := jkbms.KindOf(err)
	n := p.consecutive.Add(1)
	p.lastFailure.Store(&pollFailure{msg: err.Error(), kind: kind})
	p.metrics.PollTotal.WithLabelValues("error").Inc()
	p.metrics.ObserveDecodeError(err)

	fields := []zap.Field{zap.Error(err), zap.Stringer("kind", kind), zap.Int64("consecutive", n)}
	if frame != nil {
		fields = append(fields, logging.Hex("frame", frame))
	}
	switch kind {
	case jkbms.KindShape:
		// 重试无效：固件或协议版本不匹配
		p.log.Error("bms frame shape mismatch, firmware may be unsupported", fields...)
	case jkbms.KindTransport:
		p.log.Error("bms transport failed", fields...)
	default:
		p.log.Warn("bms poll failed", fields...)
	}
}

func (p *Poller) reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.TransportReopens.Inc()
	if err := p.t.Reopen(); err != nil {
		p.log.Error("transport reopen failed", zap.Error(err))
		return
	}
	p.log.Info("transport reopened")
}

func (p *Poller) publish(ctx context.Context, snap Snapshot) {
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, snap); err != nil {
			p.metrics.PublishTotal.WithLabelValues("error").Inc()
			p.log.Warn("publish status failed", zap.String("poll_id", snap.ID), zap.Error(err))
			continue
		}
		p.metrics.PublishTotal.WithLabelValues("ok").Inc()
	}
}

// ResetBreaker 手动关闭熔断器，立即恢复轮询
func (p *Poller) ResetBreaker() breaker.Stats {
	p.breaker.Reset()
	p.log.Info("poll breaker reset by operator")
	return p.breaker.Stats()
}

// Latest 最近一次成功读数
func (p *Poller) Latest() (Snapshot, bool) {
	s := p.latest.Load()
	if s == nil {
		return Snapshot{}, false
	}
	snap := *s
	snap.Status = s.Status.Clone()
	return snap, true
}

func (p *Poller) Health() Health {
	h := Health{
		ConsecutiveFailures: p.consecutive.Load(),
		Polls:               p.polls.Load(),
		Breaker:             p.breaker.Stats(),
	}
	if s := p.latest.Load(); s != nil {
		h.LastSuccess = s.Time
	}
	if f := p.lastFailure.Load(); f != nil {
		h.LastError = f.msg
		h.LastErrorKind = f.kind.String()
	}
	return h
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
