package backtest

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// WriteEquityCSV persists the equity curve, one row per bar, for offline analysis.
func WriteEquityCSV(path string, curve []EquityPoint) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			p.Ts.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Equity, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
