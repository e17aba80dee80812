package jkbms

// BatteryStatus 一次解码得到的电池状态。值对象，解码后不再修改；每次轮询生成新实例。
type BatteryStatus struct {
	CellCount     int   `json:"cell_count" yaml:"cell_count"`
	CellVoltages  []int `json:"cell_voltages_mv" yaml:"cell_voltages_mv"` // mV
	TempFET       int   `json:"temp_fet_c" yaml:"temp_fet_c"`             // °C
	TempProbe1    int   `json:"temp_probe1_c" yaml:"temp_probe1_c"`       // °C
	TempProbe2    int   `json:"temp_probe2_c" yaml:"temp_probe2_c"`       // °C
	PackVoltage   int   `json:"pack_voltage_cv" yaml:"pack_voltage_cv"`   // 0.01V
	Current       int   `json:"current_ca" yaml:"current_ca"`             // 0.01A，正=放电，负=充电
	StateOfCharge int   `json:"soc_percent" yaml:"soc_percent"`
}

// PackVolts 总电压（V）
func (s BatteryStatus) PackVolts() float64 {
	return float64(s.PackVoltage) / 100
}

// Amps 电流（A），正=放电
func (s BatteryStatus) Amps() float64 {
	return float64(s.Current) / 100
}

// CellVolts 第 i 节单体电压（V）
func (s BatteryStatus) CellVolts(i int) float64 {
	return float64(s.CellVoltages[i]) / 1000
}

func (s BatteryStatus) Charging() bool {
	return s.Current < 0
}

// Clone 深拷贝，避免调用方共享单体电压切片
func (s BatteryStatus) Clone() BatteryStatus {
	c := s
	c.CellVoltages = append([]int(nil), s.CellVoltages...)
	return c
}
