package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

func simResult() *dynamo.Result {
	return &dynamo.Result{
		States: []dynamo.State{
			{1.0, 2.0, 1000},
			{0.9, 2.1, 990},
		},
		Controls: []dynamo.Control{
			{0.05},
		},
		Times: []float64{0.0, 0.1},
		Metrics: map[string]float64{
			"peak_x3": 1000,
		},
	}
}

func solution(t *testing.T) *optcontrol.Solution {
	t.Helper()
	grid, err := optcontrol.NewGrid(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	return &optcontrol.Solution{
		Grid:       grid,
		State:      optcontrol.TrajectoryFromRows([][]float64{{1, 2, 3, 4}}),
		Control:    optcontrol.TrajectoryFromRows([][]float64{{0.5, 0.5, 0.25, 0}}),
		Costate:    optcontrol.TrajectoryFromRows([][]float64{{-1, -0.5, -0.25, 0}}),
		Status:     optcontrol.StatusConverged,
		Iterations: 3,
		History:    []float64{1, 0.1, 1e-5},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.SaveSimulation(RunMetadata{Model: "metastasis-sc1", Dt: 0.1, Duration: 0.1, Integrator: "rk4", Controller: "constant"}, simResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "metastasis-sc1_") {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != KindSimulation || meta.Integrator != "rk4" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["peak_x3"] != 1000 {
		t.Errorf("expected peak 1000, got %f", meta.Metrics["peak_x3"])
	}

	table, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if len(table.Rows) != 2 || len(table.Times) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if got := strings.Join(table.Header, ","); got != "x1,x2,x3,u1" {
		t.Errorf("unexpected header %s", got)
	}
	if u := table.Column("u1"); u[1] != 0.05 {
		t.Errorf("last row should repeat the final control, got %v", u)
	}
	if table.Column("lambda1") != nil {
		t.Error("simulation run should have no costate column")
	}
}

func TestStoreSaveSolution(t *testing.T) {
	st := New(t.TempDir())

	runID, err := st.SaveSolution(RunMetadata{Model: "metastasis", Scenario: "radio-sc1", Weights: []float64{1e9}}, solution(t))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != KindOptimization || meta.Status != "converged" || meta.Iterations != 3 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Dt != 0.25 || len(meta.History) != 3 || meta.Weights[0] != 1e9 {
		t.Errorf("grid or history lost: %+v", meta)
	}

	table, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if got := strings.Join(table.Header, ","); got != "x1,u1,lambda1" {
		t.Errorf("unexpected header %s", got)
	}
	if table.Times[3] != 0.75 {
		t.Errorf("expected last time 0.75, got %f", table.Times[3])
	}
	if lam := table.Column("lambda1"); lam[0] != -1 {
		t.Errorf("unexpected costate %v", lam)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	if _, err := st.SaveSimulation(RunMetadata{Model: "first"}, simResult()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := st.SaveSolution(RunMetadata{Model: "second"}, solution(t)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Model != "second" {
		t.Errorf("expected newest run first, got %s", runs[0].Model)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runID, err := st.SaveSimulation(RunMetadata{Model: "remodeling"}, simResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "states.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, FromSolution(RunMetadata{Scenario: "deno-sc3"}, solution(t))); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data.Steps != 4 || len(data.Costates) != 4 || data.Costates[1][0] != -0.5 {
		t.Errorf("unexpected export %+v", data)
	}
	if data.Status != "converged" || data.Scenario != "deno-sc3" {
		t.Errorf("metadata lost: %+v", data)
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, FromResult(RunMetadata{}, simResult())); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "time,x1,x2,x3,u1" {
		t.Errorf("unexpected header %s", lines[0])
	}
	if lines[2] != "0.1,0.9,2.1,990,0.05" {
		t.Errorf("unexpected row %s", lines[2])
	}
}

func TestFromTableRoundTrip(t *testing.T) {
	st := New(t.TempDir())
	meta := RunMetadata{Model: "metastasis", Scenario: "radio-sc1"}
	runID, err := st.SaveSolution(meta, solution(t))
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatal(err)
	}
	table, err := st.LoadStates(runID)
	if err != nil {
		t.Fatal(err)
	}

	data := FromTable(*loaded, table)
	if len(data.States) != 4 || len(data.Controls) != 4 || len(data.Costates) != 4 {
		t.Fatalf("unexpected shapes %d/%d/%d", len(data.States), len(data.Controls), len(data.Costates))
	}
	if data.Controls[2][0] != 0.25 || data.Costates[0][0] != -1 || data.States[3][0] != 4 {
		t.Errorf("columns split wrongly: %+v", data)
	}
	if data.Status != "converged" || data.Iterations != 3 {
		t.Errorf("metadata lost: %+v", data)
	}
}
