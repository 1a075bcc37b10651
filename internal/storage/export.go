package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/flowpipe/internal/reach"
)

type ExportStep struct {
	Start   float64   `json:"t_start"`
	End     float64   `json:"t_end"`
	Offsets []float64 `json:"offsets"`
}

type ExportData struct {
	Run        *RunMetadata `json:"run,omitempty"`
	Ring       string       `json:"base_ring"`
	TimeStep   float64      `json:"time_step"`
	Directions [][]float64  `json:"directions"`
	Steps      []ExportStep `json:"steps"`
}

func newExportData(meta *RunMetadata, fp *reach.Flowpipe) ExportData {
	data := ExportData{
		Run:        meta,
		Ring:       string(fp.Ring),
		TimeStep:   fp.TimeStep,
		Directions: make([][]float64, len(fp.Directions)),
		Steps:      make([]ExportStep, fp.Len()),
	}
	for i, d := range fp.Directions {
		data.Directions[i] = d
	}
	for i, p := range fp.Polytopes {
		start, end := fp.Interval(i)
		data.Steps[i] = ExportStep{Start: start, End: end, Offsets: p.Offsets()}
	}
	return data
}

// WriteJSON encodes fp, with its run metadata when meta is not nil.
func WriteJSON(w io.Writer, meta *RunMetadata, fp *reach.Flowpipe) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newExportData(meta, fp))
}

func ExportJSON(path string, meta *RunMetadata, fp *reach.Flowpipe) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, fp)
}
