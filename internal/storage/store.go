package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

const (
	KindSimulation   = "simulate"
	KindOptimization = "optimize"

	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Model      string             `json:"model"`
	Scenario   string             `json:"scenario,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Integrator string             `json:"integrator,omitempty"`
	Controller string             `json:"controller,omitempty"`
	Weights    []float64          `json:"weights,omitempty"`
	Status     string             `json:"status,omitempty"`
	Iterations int                `json:"iterations,omitempty"`
	Objective  float64            `json:"objective,omitempty"`
	History    []float64          `json:"history,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Table is a loaded states.csv: one row per time point, columns as in Header
// without the leading time column.
type Table struct {
	Header []string
	Times  []float64
	Rows   [][]float64
}

// Column returns one named column, or nil when the table has no such column.
func (t *Table) Column(name string) []float64 {
	for j, h := range t.Header {
		if h != name {
			continue
		}
		col := make([]float64, len(t.Rows))
		for i, row := range t.Rows {
			if j < len(row) {
				col[i] = row[j]
			}
		}
		return col
	}
	return nil
}

func (s *Store) newRun(meta *RunMetadata) (string, error) {
	now := s.now()
	name := meta.Model
	if meta.Scenario != "" {
		name = meta.Scenario
	}
	meta.ID = fmt.Sprintf("%s_%d", name, now.UnixNano())
	meta.Timestamp = now

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	return runDir, nil
}

func writeMetadata(runDir string, meta RunMetadata) error {
	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func writeStates(runDir string, data ExportData) error {
	file, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportCSV(file, data)
}

// SaveSimulation records a simulator run.
func (s *Store) SaveSimulation(meta RunMetadata, result *dynamo.Result) (string, error) {
	meta.Kind = KindSimulation
	meta.Metrics = result.Metrics
	runDir, err := s.newRun(&meta)
	if err != nil {
		return "", err
	}
	if err := writeMetadata(runDir, meta); err != nil {
		return "", err
	}
	if err := writeStates(runDir, FromResult(meta, result)); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// SaveSolution records a forward-backward sweep: state, control and costate
// on the solver grid plus the convergence history.
func (s *Store) SaveSolution(meta RunMetadata, sol *optcontrol.Solution) (string, error) {
	meta.Kind = KindOptimization
	meta.Status = sol.Status.String()
	meta.Iterations = sol.Iterations
	meta.History = sol.History
	meta.Dt = sol.Grid.H
	meta.Duration = sol.Grid.T
	runDir, err := s.newRun(&meta)
	if err != nil {
		return "", err
	}
	if err := writeMetadata(runDir, meta); err != nil {
		return "", err
	}
	if err := writeStates(runDir, FromSolution(meta, sol)); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
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

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	return &meta, nil
}

func (s *Store) LoadStates(runID string) (*Table, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	table := &Table{}
	if len(records) == 0 {
		return table, nil
	}
	table.Header = records[0][1:]

	for line, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		values := make([]float64, len(record))
		for j, cell := range record {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("run %s line %d: %w", runID, line+2, err)
			}
			values[j] = v
		}
		table.Times = append(table.Times, values[0])
		table.Rows = append(table.Rows, values[1:])
	}

	return table, nil
}
