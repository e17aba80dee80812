package breaker

import (
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常轮询
	StateOpen                  // 暂停轮询，等待冷却
	StateHalfOpen              // 冷却结束，允许一次试探
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen 熔断期内拒绝调用
var ErrOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold = 5
	defaultTimeout   = 30 * time.Second
)

// Breaker 按连续失败次数熔断，任意一次成功都会清零计数
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	changedAt time.Time
	trips     int64

	threshold int
	timeout   time.Duration
	now       func() time.Time
	onChange  func(from, to State)
}

// New threshold<=0 或 timeout<=0 时使用默认值（5 次 / 30s）
func New(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Breaker{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
		changedAt: time.Now(),
	}
}

// OnStateChange 状态变化回调，在持锁外同步调用
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow 判断本次是否可以调用；Open 超时后转为 HalfOpen 并放行一次
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from State
	changed := false
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			b.mu.Unlock()
			return ErrOpen
		}
		from, changed = b.transitionLocked(StateHalfOpen)
	case StateHalfOpen:
		// 已有试探在进行
		b.mu.Unlock()
		return ErrOpen
	}
	cb := b.onChange
	b.mu.Unlock()
	if changed && cb != nil {
		cb(from, StateHalfOpen)
	}
	return nil
}

// Record 记录调用结果，返回本次是否触发熔断
func (b *Breaker) Record(err error) bool {
	b.mu.Lock()
	var (
		from, to State
		changed  bool
		tripped  bool
	)
	if err == nil {
		b.failures = 0
		to = StateClosed
		from, changed = b.transitionLocked(StateClosed)
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.threshold {
			to = StateOpen
			from, changed = b.transitionLocked(StateOpen)
			b.openedAt = b.now()
			b.failures = 0
			b.trips++
			tripped = true
		}
	}
	cb := b.onChange
	b.mu.Unlock()
	if changed && cb != nil {
		cb(from, to)
	}
	return tripped
}

// Cancel 放弃一次已放行但未得出结果的调用，不计入失败。
// HalfOpen 试探被取消时退回 Open，冷却已满，下一次 Allow 可立即再试探。
func (b *Breaker) Cancel() {
	b.mu.Lock()
	if b.state != StateHalfOpen {
		b.mu.Unlock()
		return
	}
	from, changed := b.transitionLocked(StateOpen)
	cb := b.onChange
	b.mu.Unlock()
	if changed && cb != nil {
		cb(from, StateOpen)
	}
}

func (b *Breaker) transitionLocked(to State) (State, bool) {
	from := b.state
	if from == to {
		return from, false
	}
	b.state = to
	b.changedAt = b.now()
	return from, true
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复为 Closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	from, changed := b.transitionLocked(StateClosed)
	b.failures = 0
	cb := b.onChange
	b.mu.Unlock()
	if changed && cb != nil {
		cb(from, StateClosed)
	}
}

// Stats 熔断器统计信息
type Stats struct {
	State           string    `json:"state"`
	Failures        int       `json:"consecutive_failures"`
	Trips           int64     `json:"trip_count"`
	LastStateChange time.Time `json:"last_state_change"`
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:           b.state.String(),
		Failures:        b.failures,
		Trips:           b.trips,
		LastStateChange: b.changedAt,
	}
}
