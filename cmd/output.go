package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/inference-sim/timestep-sampler/sampler/trace"
)

// printResults renders one row per run, followed by the generation metadata
// of the first run (identical across a batch).
func printResults(w io.Writer, label string, results []runResult) {
	var data [][]string
	for _, r := range results {
		data = append(data, []string{
			strconv.Itoa(r.Index),
			strconv.FormatInt(r.Seed, 10),
			label,
			fmt.Sprintf("%.4f", r.Mean),
			fmt.Sprintf("%.4f", r.Std),
			strconv.Itoa(r.Latent.CountNonFinite()),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"RUN", "SEED", "SAMPLER", "MEAN", "STD", "NON-FINITE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	if len(results) == 0 || len(results[0].Params) == 0 {
		return
	}
	params := results[0].Params
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, params[k])
	}
}

// traceExport is the JSON document written per run by --trace-output.
type traceExport struct {
	Run     int                  `json:"run"`
	Seed    int64                `json:"seed"`
	Params  map[string]any       `json:"generation_params,omitempty"`
	Trace   *trace.SamplingTrace `json:"trace"`
	Summary *trace.TraceSummary  `json:"summary"`
}

// writeTraces writes every run's trace and summary to path as a JSON array.
func writeTraces(path string, results []runResult) error {
	exports := make([]traceExport, 0, len(results))
	for _, r := range results {
		exports = append(exports, traceExport{
			Run:     r.Index,
			Seed:    r.Seed,
			Params:  r.Params,
			Trace:   r.Trace,
			Summary: trace.Summarize(r.Trace),
		})
	}
	data, err := json.MarshalIndent(exports, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding traces: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing traces to %s: %w", path, err)
	}
	return nil
}
