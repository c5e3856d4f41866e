package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/remodel/internal/analysis"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/export"
	"github.com/san-kum/remodel/internal/storage"
	"github.com/san-kum/remodel/internal/viz"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
)

func runStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

// loadRun reads the metadata and states of a stored run.
func loadRun(st *storage.Store, runID string) (*storage.RunMetadata, *storage.Table, error) {
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run: %w", err)
	}
	table, err := st.LoadStates(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load states: %w", err)
	}
	return meta, table, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMODEL\tSCENARIO\tWEIGHTS\tSTATUS\tTIMESTAMP")
	for _, run := range runs {
		status := run.Status
		if status == "" {
			status = "-"
		}
		scenario := run.Scenario
		if scenario == "" {
			scenario = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
			run.ID, run.Kind, run.Model, scenario, run.Weights, status,
			run.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	meta, table, err := loadRun(st, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s, %s)\n", meta.ID, meta.Kind, meta.Model)
	for _, col := range table.Header {
		if strings.HasPrefix(col, "lambda") {
			continue
		}
		name := col
		if l, ok := export.Labels[col]; ok {
			name = l
		}
		fmt.Println()
		fmt.Println(viz.Chart(table.Column(col), 80, 10, name))
	}
	if len(meta.History) > 0 {
		fmt.Println()
		fmt.Println(viz.Chart(meta.History, 80, 8, "sweep error per iteration"))
	}
	if len(meta.Metrics) > 0 {
		fmt.Println("\nmetrics:")
		printMetrics(meta.Metrics)
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	meta, table, err := loadRun(st, args[0])
	if err != nil {
		return err
	}

	data := storage.FromTable(*meta, table)
	if len(data.States) == 0 {
		return fmt.Errorf("run %s has no state columns", meta.ID)
	}
	dim := len(data.States[0])
	if xAxis < 0 || xAxis >= dim || yAxis < 0 || yAxis >= dim {
		return dynamo.DimensionError("phase axis", max(xAxis, yAxis)+1, dim)
	}

	states := make([]dynamo.State, len(data.States))
	for i, row := range data.States {
		states[i] = row
	}
	portrait := analysis.FromTrajectory(states, xAxis, yAxis)

	fmt.Printf("phase portrait of %s: x%d (horizontal) vs x%d (vertical)\n\n", meta.ID, xAxis+1, yAxis+1)
	fmt.Println(analysis.PhasePortraitToASCII(portrait, 70, 24))

	xs := table.Column(fmt.Sprintf("x%d", xAxis+1))
	mean := floats.Sum(xs) / float64(len(xs))
	if period := analysis.Period(analysis.Crossings(table.Times, states, xAxis, mean)); period > 0 {
		fmt.Printf("x%d crosses its mean %.4g every %.4g days\n", xAxis+1, mean, period)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	meta, table, err := loadRun(st, args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, storage.FromTable(*meta, table))
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	meta, table, err := loadRun(st, args[0])
	if err != nil {
		return err
	}
	return storage.ExportCSV(os.Stdout, storage.FromTable(*meta, table))
}

func renderFigures(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	meta, table, err := loadRun(st, args[0])
	if err != nil {
		return err
	}

	dir := filepath.Join(outDir, meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	title := meta.Model
	if meta.Scenario != "" {
		title = fmt.Sprintf("%s %v", meta.Scenario, meta.Weights)
	}
	written, err := export.Figures(dir, title, table, meta.History)
	for _, path := range written {
		fmt.Println(path)
	}
	return err
}

func overlayRuns(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	column, ids := args[0], args[1:]

	tables := make([]*storage.Table, len(ids))
	for i, id := range ids {
		_, table, err := loadRun(st, id)
		if err != nil {
			return err
		}
		tables[i] = table
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(outDir, fmt.Sprintf("overlay_%s.png", column))
	if err := export.Overlay(path, column, ids, tables); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
