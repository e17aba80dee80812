package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// writeSnapshot 按格式输出一次读数
func writeSnapshot(w io.Writer, format string, snap poller.Snapshot) error {
	switch strings.ToLower(format) {
	case formatText, "":
		return writeText(w, snap)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func writeText(w io.Writer, snap poller.Snapshot) error {
	st := snap.Status
	var b strings.Builder
	fmt.Fprintf(&b, "Cellcount: %d\n", st.CellCount)
	for i := range st.CellVoltages {
		fmt.Fprintf(&b, "CellVolt%-2d: %.3f V\n", i, st.CellVolts(i))
	}
	fmt.Fprintf(&b, "Temp_Fet : %d °C\n", st.TempFET)
	fmt.Fprintf(&b, "Temp_1   : %d °C\n", st.TempProbe1)
	fmt.Fprintf(&b, "Temp_2   : %d °C\n", st.TempProbe2)
	fmt.Fprintf(&b, "BatVolt  : %.2f V\n", st.PackVolts())
	fmt.Fprintf(&b, "Current  : %.2f A\n", st.Amps())
	fmt.Fprintf(&b, "SOC      : %d %%\n", st.StateOfCharge)
	_, err := io.WriteString(w, b.String())
	return err
}
