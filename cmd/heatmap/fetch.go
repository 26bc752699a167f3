package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-heatmap/internal/heatmap"
	"github.com/JakeFAU/replay-heatmap/internal/storage/local"
)

type fetchOutput struct {
	Key      string           `json:"key"`
	Data     *heatmap.Summary `json:"data"`
	Duration string           `json:"duration,omitempty"`
	Top      []heatmap.Marker `json:"top,omitempty"`
	Error    *errorOutput     `json:"error,omitempty"`
}

type errorOutput struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newFetchCmd(rt *runtime) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "fetch <video-id-or-url>...",
		Short: "Fetch heatmaps for one or more videos",
		Long: `Fetches the most-replayed heatmap for each argument. A single argument fails
the command when the lookup fails; with several arguments each result carries
its own error and the command succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, rt, args, top)
		},
	}

	f := cmd.Flags()
	f.Int("concurrency", 0, "maximum lookups in flight for a batch")
	f.Int("retries", 0, "total HTTP attempts per video")
	f.Duration("timeout", 0, "per-attempt HTTP timeout")
	f.Duration("retry-delay", 0, "base delay between attempts; attempt n waits n times this")
	f.String("output-dir", "", "write <key>.json per result instead of printing")
	f.IntVar(&top, "top", 0, "include the N most intense markers")

	bindFlag(rt.v, "batch.concurrency", f.Lookup("concurrency"))
	bindFlag(rt.v, "http.retries", f.Lookup("retries"))
	bindFlag(rt.v, "http.timeout", f.Lookup("timeout"))
	bindFlag(rt.v, "http.retry_delay", f.Lookup("retry-delay"))
	bindFlag(rt.v, "output.dir", f.Lookup("output-dir"))
	return cmd
}

func runFetch(cmd *cobra.Command, rt *runtime, args []string, top int) error {
	ctx := cmd.Context()
	s := rt.scraper()

	var results []heatmap.BatchItemResult
	if len(args) == 1 {
		summary, err := s.Fetch(ctx, args[0])
		results = []heatmap.BatchItemResult{{Key: args[0], Data: summary, Err: err}}
	} else {
		results = s.FetchBatch(ctx, args)
	}

	outputs := make([]fetchOutput, len(results))
	for i, res := range results {
		outputs[i] = renderResult(res, top)
	}

	if err := emit(cmd, rt, outputs); err != nil {
		return err
	}

	if len(args) == 1 && results[0].Err != nil {
		return fmt.Errorf("fetch %s: %w", args[0], results[0].Err)
	}
	return nil
}

func renderResult(res heatmap.BatchItemResult, top int) fetchOutput {
	out := fetchOutput{Key: res.Key, Data: res.Data}
	if res.Err != nil {
		out.Error = &errorOutput{Kind: heatmap.KindName(res.Err), Message: res.Err.Error()}
	}
	if res.Data != nil {
		out.Duration = heatmap.FormatMillis(res.Data.EstimatedDurationMillis)
		if top > 0 {
			out.Top = heatmap.TopMarkers(res.Data.Markers, top)
		}
	}
	return out
}

func emit(cmd *cobra.Command, rt *runtime, outputs []fetchOutput) error {
	dir := rt.cfg.Output.Dir
	if dir == "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		var payload any = outputs
		if len(outputs) == 1 {
			payload = outputs[0]
		}
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}

	store, err := local.New(local.Config{BaseDir: dir})
	if err != nil {
		return fmt.Errorf("open output dir: %w", err)
	}
	var errs []error
	for _, out := range outputs {
		uri, err := store.PutJSON(cmd.Context(), out.Key, out)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rt.logger.Info("result written", zap.String("key", out.Key), zap.String("uri", uri))
		fmt.Fprintln(cmd.OutOrStdout(), uri)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
