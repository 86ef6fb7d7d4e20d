package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/seesaw/internal/sampling"
)

type ExportData struct {
	Run     RunMetadata       `json:"run"`
	Samples []sampling.Sample `json:"samples"`
}

func ExportJSON(w io.Writer, meta RunMetadata, samples []sampling.Sample) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Run: meta, Samples: samples})
}
