package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/jkbms-gateway/internal/breaker"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
	"github.com/taoyao-code/jkbms-gateway/internal/protocol/jkbms"
)

// StatusSource 读数来源（通常是 *poller.Poller）
type StatusSource interface {
	Latest() (poller.Snapshot, bool)
	Health() poller.Health
	Poll(ctx context.Context) (poller.Snapshot, error)
	ResetBreaker() breaker.Stats
}

// StatusHandler 电池状态查询处理器
type StatusHandler struct {
	source StatusSource
	logger *zap.Logger
	now    func() time.Time
}

func NewStatusHandler(source StatusSource, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{source: source, logger: logger, now: time.Now}
}

// Derived 由原始读数换算的常用量
type Derived struct {
	PackVoltageV float64   `json:"pack_voltage_v"`
	CurrentA     float64   `json:"current_a"`
	Charging     bool      `json:"charging"`
	CellVoltageV []float64 `json:"cell_voltages_v"`
	MinCellMV    int       `json:"min_cell_mv"`
	MaxCellMV    int       `json:"max_cell_mv"`
	CellDeltaMV  int       `json:"cell_delta_mv"`
}

// StatusResponse /api/v1/status 的响应体
type StatusResponse struct {
	poller.Snapshot
	AgeMS   int64   `json:"age_ms"`
	Derived Derived `json:"derived"`
}

func derive(st jkbms.BatteryStatus) Derived {
	d := Derived{
		PackVoltageV: st.PackVolts(),
		CurrentA:     st.Amps(),
		Charging:     st.Charging(),
		CellVoltageV: make([]float64, len(st.CellVoltages)),
	}
	for i := range st.CellVoltages {
		d.CellVoltageV[i] = st.CellVolts(i)
	}
	if len(st.CellVoltages) > 0 {
		d.MinCellMV = slices.Min(st.CellVoltages)
		d.MaxCellMV = slices.Max(st.CellVoltages)
		d.CellDeltaMV = d.MaxCellMV - d.MinCellMV
	}
	return d
}

func (h *StatusHandler) respond(c *gin.Context, snap poller.Snapshot) {
	c.JSON(http.StatusOK, StatusResponse{
		Snapshot: snap,
		AgeMS:    h.now().Sub(snap.Time).Milliseconds(),
		Derived:  derive(snap.Status),
	})
}

// GetStatus 最近一次成功读数
// GET /api/v1/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	snap, ok := h.source.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "no_reading",
			"health": h.source.Health(),
		})
		return
	}
	h.respond(c, snap)
}

// GetPollHealth 轮询统计与最近错误
// GET /api/v1/poll
func (h *StatusHandler) GetPollHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Health())
}

// TriggerPoll 立即执行一次轮询
// POST /api/v1/poll
func (h *StatusHandler) TriggerPoll(c *gin.Context) {
	snap, err := h.source.Poll(c.Request.Context())
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, poller.ErrSkipped) {
			code = http.StatusServiceUnavailable
		}
		h.logger.Warn("on-demand poll failed", zap.Error(err))
		c.JSON(code, gin.H{
			"error":     err.Error(),
			"kind":      jkbms.KindOf(err).String(),
			"retryable": jkbms.Retryable(err),
		})
		return
	}
	h.respond(c, snap)
}

// ResetBreaker 运维手动恢复轮询（如更换串口线后不必等冷却）
// POST /api/v1/poll/reset
func (h *StatusHandler) ResetBreaker(c *gin.Context) {
	stats := h.source.ResetBreaker()
	h.logger.Info("poll breaker reset", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"breaker": stats})
}
