package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/jkbms-gateway/internal/protocol/jkbms"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics BMS 轮询与电池读数指标
type AppMetrics struct {
	PollTotal        *prometheus.CounterVec // labels: result=ok|error|skipped
	DecodeErrors     *prometheus.CounterVec // labels: kind
	PollDuration     prometheus.Histogram
	FrameBytes       prometheus.Counter
	LastSuccess      prometheus.Gauge
	BreakerState     prometheus.Gauge // 0=closed 1=open 2=half_open
	TransportReopens prometheus.Counter
	PublishTotal     *prometheus.CounterVec // labels: result

	CellVoltage   *prometheus.GaugeVec // labels: cell
	Temperature   *prometheus.GaugeVec // labels: sensor
	PackVoltage   prometheus.Gauge
	Current       prometheus.Gauge
	StateOfCharge prometheus.Gauge
	CellCount     prometheus.Gauge
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		PollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jkbms_poll_total",
			Help: "BMS poll attempts by result.",
		}, []string{"result"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jkbms_decode_errors_total",
			Help: "Frame decode failures by error kind.",
		}, []string{"kind"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jkbms_poll_duration_seconds",
			Help:    "Time spent on one poll including settle delay.",
			Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2},
		}),
		FrameBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jkbms_frame_bytes_total",
			Help: "Bytes of accepted response frames.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jkbms_last_success_timestamp_seconds",
			Help: "Unix time of the last decoded status.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jkbms_breaker_state",
			Help: "Poll circuit breaker state (0=closed, 1=open, 2=half_open).",
		}),
		TransportReopens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jkbms_transport_reopen_total",
			Help: "Serial transport reopen attempts.",
		}),
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jkbms_publish_total",
			Help: "Latest status publications by result.",
		}, []string{"result"}),
		CellVoltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jkbms_cell_voltage_volts",
			Help: "Per-cell voltage.",
		}, []string{"cell"}),
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jkbms_temperature_celsius",
			Help: "Temperature by sensor.",
		}, []string{"sensor"}),
		PackVoltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jkbms_pack_voltage_volts",
			Help: "Total pack voltage.",
		}),
		Current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jkbms_current_amperes",
			Help: "Pack current, positive while discharging.",
		}),
		StateOfCharge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jkbms_state_of_charge_percent",
			Help: "Remaining capacity.",
		}),
		CellCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jkbms_cell_count",
			Help: "Number of cells reported by the BMS.",
		}),
	}
	reg.MustRegister(
		m.PollTotal, m.DecodeErrors, m.PollDuration, m.FrameBytes, m.LastSuccess,
		m.BreakerState, m.TransportReopens, m.PublishTotal,
		m.CellVoltage, m.Temperature, m.PackVoltage, m.Current, m.StateOfCharge, m.CellCount,
	)
	return m
}

// ObserveStatus 把一次读数写入电池 gauge；单体数变少时删除多余的 cell 标签
func (m *AppMetrics) ObserveStatus(st jkbms.BatteryStatus) {
	m.CellVoltage.Reset()
	for i := range st.CellVoltages {
		m.CellVoltage.WithLabelValues(strconv.Itoa(i + 1)).Set(st.CellVolts(i))
	}
	m.Temperature.WithLabelValues("fet").Set(float64(st.TempFET))
	m.Temperature.WithLabelValues("probe1").Set(float64(st.TempProbe1))
	m.Temperature.WithLabelValues("probe2").Set(float64(st.TempProbe2))
	m.PackVoltage.Set(st.PackVolts())
	m.Current.Set(st.Amps())
	m.StateOfCharge.Set(float64(st.StateOfCharge))
	m.CellCount.Set(float64(st.CellCount))
}

// ObserveDecodeError 按错误类别计数
func (m *AppMetrics) ObserveDecodeError(err error) {
	m.DecodeErrors.WithLabelValues(jkbms.KindOf(err).String()).Inc()
}
