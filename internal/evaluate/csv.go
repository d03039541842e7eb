package evaluate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/utils"
)

var csvHeader = []string{"segment", "mse_fmri", "mse_fusion", "corr_fmri", "corr_fusion"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// EncodeCSV renders records with a header row. Undefined values are
// written as NaN.
func EncodeCSV(records []models.MetricsRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{r.Segment, formatFloat(r.MSEFMRI), formatFloat(r.MSEFusion),
			formatFloat(r.CorrFMRI), formatFloat(r.CorrFusion)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses a results table produced by EncodeCSV. name only
// labels errors.
func DecodeCSV(name string, data []byte) ([]models.MetricsRecord, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var out []models.MetricsRecord
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("%s line %d: expected %d fields, got %d", name, i+2, len(csvHeader), len(row))
		}
		var vals [4]float64
		for j := range vals {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", name, i+2, err)
			}
			vals[j] = v
		}
		out = append(out, models.MetricsRecord{Segment: row[0], MSEFMRI: vals[0], MSEFusion: vals[1],
			CorrFMRI: vals[2], CorrFusion: vals[3]})
	}
	return out, nil
}

// WriteCSV writes records to path atomically.
func WriteCSV(path string, records []models.MetricsRecord) error {
	data, err := EncodeCSV(records)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, data)
}

// ReadCSV parses a results file written by WriteCSV.
func ReadCSV(path string) ([]models.MetricsRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: "evaluate"}
		}
		return nil, err
	}
	return DecodeCSV(path, data)
}
