package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// CSVRenderer renders a Report as a header row followed by one row per
// bucket, the shape this codebase's CSV output writer already produces
// for tabular data. Poll and failure counts and warnings are not
// written to the CSV.
type CSVRenderer struct{}

func (CSVRenderer) Render(r Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"bucket", "display_name", "total_used", "windows_crossed", "anomalies", "limit"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, b := range r.Buckets {
		row := []string{
			b.Name,
			DisplayName(b.Name),
			strconv.FormatInt(b.TotalUsed, 10),
			strconv.FormatInt(b.WindowsCrossed, 10),
			strconv.FormatInt(b.Anomalies, 10),
			strconv.FormatInt(b.Limit, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
