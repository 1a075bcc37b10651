package storage

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/flowpipe/internal/config"
	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/lotov"
	"github.com/san-kum/flowpipe/internal/metrics"
	"github.com/san-kum/flowpipe/internal/reach"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const (
	metadataFile   = "metadata.json"
	directionsFile = "directions.csv"
	offsetsFile    = "offsets.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Fingerprint string             `json:"fingerprint"`
	Dim         int                `json:"dim"`
	Directions  int                `json:"directions"`
	Steps       int                `json:"steps"`
	TimeStep    float64            `json:"time_step"`
	InitialTime float64            `json:"initial_time"`
	Ring        string             `json:"base_ring"`
	Solver      string             `json:"solver"`
	Alpha       float64            `json:"alpha"`
	Beta        float64            `json:"beta"`
	Metrics     map[string]float64 `json:"metrics"`
	Problem     *config.Problem    `json:"problem"`
}

// Fingerprint hashes the canonical YAML encoding of p. Equal problems give
// equal fingerprints regardless of their name.
func Fingerprint(p *config.Problem) (string, error) {
	c := p.Clone()
	c.Name = ""
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Save writes the run directory for fp and returns its id.
func (s *Store) Save(p *config.Problem, fp *reach.Flowpipe) (string, error) {
	if p == nil || fp == nil || fp.Len() == 0 {
		return "", fmt.Errorf("storage: save without problem or flowpipe: %w", dynamo.ErrMissingInput)
	}
	fingerprint, err := Fingerprint(p)
	if err != nil {
		return "", err
	}
	summary, err := metrics.Summarize(fp)
	if err != nil {
		return "", err
	}

	runID := fmt.Sprintf("%s_%d", p.Name, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Name:        p.Name,
		Timestamp:   time.Now(),
		Fingerprint: fingerprint,
		Dim:         fp.Dim(),
		Directions:  len(fp.Directions),
		Steps:       fp.Len(),
		TimeStep:    fp.TimeStep,
		InitialTime: fp.InitialTime,
		Ring:        string(fp.Ring),
		Solver:      p.Options.Solver,
		Alpha:       fp.Alpha,
		Beta:        fp.Beta,
		Metrics:     summary.Map(),
		Problem:     p,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	dirRows := make([][]string, 0, len(fp.Directions)+1)
	header := make([]string, fp.Dim())
	for i := range header {
		header[i] = fmt.Sprintf("d%d", i)
	}
	dirRows = append(dirRows, header)
	for _, d := range fp.Directions {
		dirRows = append(dirRows, formatRow(nil, d))
	}
	if err := writeCSV(filepath.Join(runDir, directionsFile), dirRows); err != nil {
		return "", err
	}

	rows := make([][]string, 0, fp.Len()+1)
	header = []string{"t_start", "t_end"}
	for j := range fp.Directions {
		header = append(header, fmt.Sprintf("rho_%d", j))
	}
	rows = append(rows, header)
	for i, poly := range fp.Polytopes {
		start, end := fp.Interval(i)
		rows = append(rows, formatRow([]float64{start, end}, poly.B))
	}
	if err := writeCSV(filepath.Join(runDir, offsetsFile), rows); err != nil {
		return "", err
	}

	return runID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadFlowpipe rebuilds the stored flowpipe of a run.
func (s *Store) LoadFlowpipe(runID string) (*reach.Flowpipe, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	dirRows, err := readCSV(filepath.Join(s.baseDir, runID, directionsFile))
	if err != nil {
		return nil, err
	}
	dirs := make([]dynamo.Vector, len(dirRows))
	for i, row := range dirRows {
		if dirs[i], err = parseRow(row); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", directionsFile, i+1, err)
		}
	}

	rows, err := readCSV(filepath.Join(s.baseDir, runID, offsetsFile))
	if err != nil {
		return nil, err
	}
	table := make([][]float64, len(rows))
	for i, row := range rows {
		vals, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", offsetsFile, i+1, err)
		}
		if len(vals) != len(dirs)+2 {
			return nil, fmt.Errorf("%s row %d has %d values, want %d: %w", offsetsFile, i+1, len(vals), len(dirs)+2, dynamo.ErrInvalidInput)
		}
		table[i] = vals[2:]
	}

	fp, err := reach.Assemble(dirs, table, meta.InitialTime, meta.TimeStep, convex.Ring(meta.Ring))
	if err != nil {
		return nil, err
	}
	fp.Alpha, fp.Beta = meta.Alpha, meta.Beta
	return fp, nil
}

func projectionFile(step int) string {
	return fmt.Sprintf("projection_%d.csv", step)
}

// SaveProjection stores the bracketing polygons of one projected time step.
func (s *Store) SaveProjection(runID string, step int, res *lotov.Result) error {
	if res == nil {
		return fmt.Errorf("storage: save without projection: %w", dynamo.ErrMissingInput)
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, runID, metadataFile)); err != nil {
		return err
	}
	rows := [][]string{{"inner_x", "inner_y", "outer_x", "outer_y", "gap"}}
	for i := range res.Inner {
		rows = append(rows, formatRow(nil, []float64{
			res.Inner[i].X, res.Inner[i].Y, res.Outer[i].X, res.Outer[i].Y, res.Gaps[i],
		}))
	}
	return writeCSV(filepath.Join(s.baseDir, runID, projectionFile(step)), rows)
}

func (s *Store) LoadProjection(runID string, step int) (*lotov.Result, error) {
	rows, err := readCSV(filepath.Join(s.baseDir, runID, projectionFile(step)))
	if err != nil {
		return nil, err
	}
	res := &lotov.Result{}
	for i, row := range rows {
		v, err := parseRow(row)
		if err != nil || len(v) != 5 {
			return nil, fmt.Errorf("projection row %d: %w", i+1, dynamo.ErrInvalidInput)
		}
		res.Inner = append(res.Inner, lotov.Point2{X: v[0], Y: v[1]})
		res.Outer = append(res.Outer, lotov.Point2{X: v[2], Y: v[3]})
		res.Gaps = append(res.Gaps, v[4])
	}
	return res, nil
}

// Projections lists the time steps with a stored projection, ascending.
func (s *Store) Projections(runID string) ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, runID, "projection_*.csv"))
	if err != nil {
		return nil, err
	}
	steps := make([]int, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "projection_"), ".csv")
		if step, err := strconv.Atoi(name); err == nil {
			steps = append(steps, step)
		}
	}
	sort.Ints(steps)
	return steps, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Sync()
}

// readCSV returns every record after the header.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return [][]string{}, nil
	}
	return records[1:], nil
}

// formatRow prints values with the shortest exact representation so
// offsets survive a round trip unchanged.
func formatRow(prefix, vals []float64) []string {
	row := make([]string, 0, len(prefix)+len(vals))
	for _, v := range prefix {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	for _, v := range vals {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

func parseRow(row []string) (dynamo.Vector, error) {
	out := make(dynamo.Vector, len(row))
	for i, s := range row {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
