package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/seesaw/internal/analysis"
	"github.com/san-kum/seesaw/internal/export"
	"github.com/san-kum/seesaw/internal/metrics"
	"github.com/san-kum/seesaw/internal/sampling"
	"github.com/san-kum/seesaw/internal/storage"
)

// settleBand is the ±counts band used by analyze.
const settleBand = 10

func runArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// loadRun resolves an id, "latest" or nothing to a stored run.
func loadRun(args []string) (*storage.RunMetadata, []sampling.Sample, error) {
	st := storage.New(dataDir)
	id, err := st.Resolve(runArg(args))
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	samples, err := st.LoadSamples(id)
	if err != nil {
		return nil, nil, err
	}
	return meta, samples, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tTIME\tDURATION\tSAMPLES\tKP/KI/KD\tMAE\tNOTE")

	for _, run := range runs {
		note := ""
		switch {
		case run.Aborted:
			note = "aborted"
		case run.Trips > 0:
			note = fmt.Sprintf("%d trips", run.Trips)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1fs\t%d\t%.2f/%.2f/%.2f\t%.2f\t%s\n",
			run.ID,
			run.Source,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			float64(run.ElapsedMs)/1000,
			run.Samples,
			run.Tuning.Kp, run.Tuning.Ki, run.Tuning.Kd,
			run.Metrics["mean_abs_error"],
			note,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("setpoint: %.0f\n", meta.Tuning.Setpoint)
	fmt.Printf("samples: %d\n\n", len(samples))

	series := []struct {
		caption string
		value   func(sampling.Sample) float64
	}{
		{"filtered reading", func(s sampling.Sample) float64 { return s.Filtered }},
		{"error", func(s sampling.Sample) float64 { return s.Error }},
		{"controller output (P+I+D)", func(s sampling.Sample) float64 { return s.Delta() }},
	}
	for _, ser := range series {
		data := make([]float64, len(samples))
		for i, s := range samples {
			data[i] = ser.value(s)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(ser.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args)
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return fmt.Errorf("run %s has too few samples to analyze", meta.ID)
	}

	fmt.Printf("run: %s\n\n", meta.ID)

	r := analysis.StepResponse(samples, settleBand)
	fmt.Println("step response:")
	fmt.Printf("  initial error: %+.1f\n", r.InitialError)
	fmt.Printf("  rise time:     %s\n", msOrNever(r.RiseMs))
	fmt.Printf("  overshoot:     %.1f%%\n", r.Overshoot*100)
	fmt.Printf("  settle (±%.0f): %s\n", r.Band, msOrNever(r.SettleMs))

	freq, amp := analysis.DominantFrequency(samples)
	fmt.Println("\nspectrum:")
	fmt.Printf("  sample interval:    %.0fms\n", analysis.Interval(samples)*1000)
	if freq > 0 {
		fmt.Printf("  dominant frequency: %.3f Hz (amplitude %.2f)\n", freq, amp)
	} else {
		fmt.Println("  no oscillation found")
	}

	fmt.Println("\nmetrics:")
	for _, name := range metrics.Sorted(meta.Metrics) {
		fmt.Printf("  %s: %.4f\n", name, meta.Metrics[name])
	}
	return nil
}

func msOrNever(ms int64) string {
	if ms < 0 {
		return "never"
	}
	return fmt.Sprintf("%dms", ms)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args)
	if err != nil {
		return err
	}

	filename := meta.ID + ".csv"
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := storage.WriteCSV(f, samples); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", filename)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args)
	if err != nil {
		return err
	}

	filename := meta.ID + ".json"
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := storage.ExportJSON(f, *meta, samples); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", filename)
	return nil
}

func exportPNG(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[:1])
	if err != nil {
		return err
	}

	filename := meta.ID + ".png"
	if len(args) > 1 {
		filename = args[1]
	}
	title := fmt.Sprintf("%s  kp=%.2f ki=%.2f kd=%.2f", meta.ID, meta.Tuning.Kp, meta.Tuning.Ki, meta.Tuning.Kd)
	if err := export.SavePNG(filename, samples, meta.Tuning.Setpoint, title); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", filename)
	return nil
}
