package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"evm-liquidation-lab/internal/metrics"
)

// RenderCSV renders per-attempt latencies, one row per attempt numbered from 1.
// A stage the attempt never reached is an empty cell.
func RenderCSV(rows []map[string]float64) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"attempt"}, metrics.MetricNames...)
	if err := w.Write(header); err != nil {
		return "", err
	}

	record := make([]string, len(header))
	for i, row := range rows {
		record[0] = strconv.Itoa(i + 1)
		for j, name := range metrics.MetricNames {
			record[j+1] = ""
			if v, ok := row[name]; ok {
				record[j+1] = strconv.FormatFloat(v, 'f', 3, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
