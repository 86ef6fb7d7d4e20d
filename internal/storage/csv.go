package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/seesaw/internal/sampling"
)

var csvHeader = []string{"offset_ms", "raw", "filtered", "error", "p", "i", "d"}

func WriteCSV(w io.Writer, samples []sampling.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatUint(uint64(s.OffsetMs), 10),
			strconv.Itoa(s.Raw),
			strconv.FormatFloat(s.Filtered, 'f', 4, 64),
			strconv.FormatFloat(s.Error, 'f', 4, 64),
			strconv.FormatFloat(s.P, 'f', 4, 64),
			strconv.FormatFloat(s.I, 'f', 4, 64),
			strconv.FormatFloat(s.D, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses samples written by WriteCSV. Rows that fail to parse are an
// error rather than skipped, since a gap would shift every later offset.
func ReadCSV(r io.Reader) ([]sampling.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sampling.Sample{}, nil
	}

	samples := make([]sampling.Sample, 0, len(records)-1)
	for i, rec := range records[1:] {
		s, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("storage: row %d: %w", i+1, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseRow(rec []string) (sampling.Sample, error) {
	var s sampling.Sample
	off, err := strconv.ParseUint(rec[0], 10, 32)
	if err != nil {
		return s, err
	}
	s.OffsetMs = uint32(off)
	if s.Raw, err = strconv.Atoi(rec[1]); err != nil {
		return s, err
	}
	floats := []*float64{&s.Filtered, &s.Error, &s.P, &s.I, &s.D}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(rec[i+2], 64); err != nil {
			return s, err
		}
	}
	return s, nil
}
