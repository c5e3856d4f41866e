package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

type ExportData struct {
	Kind       string             `json:"kind"`
	Model      string             `json:"model"`
	Scenario   string             `json:"scenario,omitempty"`
	Integrator string             `json:"integrator,omitempty"`
	Controller string             `json:"controller,omitempty"`
	Weights    []float64          `json:"weights,omitempty"`
	Status     string             `json:"status,omitempty"`
	Iterations int                `json:"iterations,omitempty"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Steps      int                `json:"steps"`
	Times      []float64          `json:"times"`
	States     [][]float64        `json:"states"`
	Controls   [][]float64        `json:"controls"`
	Costates   [][]float64        `json:"costates,omitempty"`
	History    []float64          `json:"history,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// FromResult packages a simulator run for export.
func FromResult(meta RunMetadata, result *dynamo.Result) ExportData {
	data := ExportData{
		Kind:       KindSimulation,
		Model:      meta.Model,
		Scenario:   meta.Scenario,
		Integrator: meta.Integrator,
		Controller: meta.Controller,
		Dt:         meta.Dt,
		Duration:   meta.Duration,
		Steps:      len(result.Times),
		Times:      result.Times,
		States:     make([][]float64, len(result.States)),
		Controls:   make([][]float64, len(result.Controls)),
		Metrics:    result.Metrics,
	}

	for i, s := range result.States {
		data.States[i] = s
	}
	for i, c := range result.Controls {
		data.Controls[i] = c
	}
	return data
}

func columns(tr *optcontrol.Trajectory) [][]float64 {
	out := make([][]float64, tr.Len())
	for i := range out {
		out[i] = tr.Col(i, nil)
	}
	return out
}

// FromSolution packages a sweep result for export, one vector per grid point.
func FromSolution(meta RunMetadata, sol *optcontrol.Solution) ExportData {
	return ExportData{
		Kind:       KindOptimization,
		Model:      meta.Model,
		Scenario:   meta.Scenario,
		Weights:    meta.Weights,
		Status:     sol.Status.String(),
		Iterations: sol.Iterations,
		Dt:         sol.Grid.H,
		Duration:   sol.Grid.T,
		Steps:      sol.Grid.N,
		Times:      sol.Grid.Times(),
		States:     columns(sol.State),
		Controls:   columns(sol.Control),
		Costates:   columns(sol.Costate),
		History:    sol.History,
		Metrics:    meta.Metrics,
	}
}

func ExportJSON(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func columnNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return names
}

// num prints the shortest form that parses back to v, so a stored schedule
// replays bit for bit.
func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func width(rows [][]float64) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}

// ExportCSV writes one row per time point: time, x1.., u.. and lambda... A
// simulator run has one control fewer than states, so its last row repeats
// the final control.
func ExportCSV(w io.Writer, data ExportData) error {
	nu := width(data.Controls)
	header := append([]string{"time"}, columnNames("x", width(data.States))...)
	header = append(header, columnNames("u", nu)...)
	header = append(header, columnNames("lambda", width(data.Costates))...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, 0, len(header))
	for i, t := range data.Times {
		rec = append(rec[:0], num(t))
		for _, v := range data.States[i] {
			rec = append(rec, num(v))
		}
		if nu > 0 {
			u := data.Controls[len(data.Controls)-1]
			if i < len(data.Controls) {
				u = data.Controls[i]
			}
			for _, v := range u {
				rec = append(rec, num(v))
			}
		}
		if i < len(data.Costates) {
			for _, v := range data.Costates[i] {
				rec = append(rec, num(v))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FromTable rebuilds export data from a stored run, splitting columns by
// their x, u and lambda prefixes.
func FromTable(meta RunMetadata, t *Table) ExportData {
	var xs, us, ls []int
	for j, h := range t.Header {
		switch {
		case strings.HasPrefix(h, "lambda"):
			ls = append(ls, j)
		case strings.HasPrefix(h, "x"):
			xs = append(xs, j)
		case strings.HasPrefix(h, "u"):
			us = append(us, j)
		}
	}
	pick := func(cols []int) [][]float64 {
		if len(cols) == 0 {
			return nil
		}
		out := make([][]float64, len(t.Rows))
		for i, row := range t.Rows {
			out[i] = make([]float64, len(cols))
			for k, j := range cols {
				out[i][k] = row[j]
			}
		}
		return out
	}

	return ExportData{
		Kind:       meta.Kind,
		Model:      meta.Model,
		Scenario:   meta.Scenario,
		Integrator: meta.Integrator,
		Controller: meta.Controller,
		Weights:    meta.Weights,
		Status:     meta.Status,
		Iterations: meta.Iterations,
		Dt:         meta.Dt,
		Duration:   meta.Duration,
		Steps:      len(t.Times),
		Times:      t.Times,
		States:     pick(xs),
		Controls:   pick(us),
		Costates:   pick(ls),
		History:    meta.History,
		Metrics:    meta.Metrics,
	}
}
