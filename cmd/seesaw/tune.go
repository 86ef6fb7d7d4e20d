package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/seesaw/internal/optim"
)

var (
	gridFlags []string
	sweepFile string
	metric    string
	workers   int
	top       int
	// robust
	trials    int
	mcSeed    int64
	angle     float64
	imbalance float64
	limit     float64
	scoreBy   string
)

func tuneCommands() []*cobra.Command {
	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search tuning fields on the simulated rig",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addTuningFlags(tuneCmd)
	tuneCmd.Flags().Int64Var(&seed, "seed", 1, "simulation random seed")
	tuneCmd.Flags().StringArrayVar(&gridFlags, "grid", nil, "field=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&sweepFile, "sweep", "", "sweep file (yaml)")
	tuneCmd.Flags().StringVar(&metric, "metric", "mean_abs_error", "metric to minimize")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "parallel simulations (0 = all cpus)")
	tuneCmd.Flags().IntVar(&top, "top", 5, "candidates to print")

	robustCmd := &cobra.Command{
		Use:   "robust",
		Short: "Monte Carlo check of a tuning against perturbed simulated rigs",
		Args:  cobra.NoArgs,
		RunE:  runRobust,
	}
	addTuningFlags(robustCmd)
	robustCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	robustCmd.Flags().Int64Var(&mcSeed, "seed", 1, "random seed")
	robustCmd.Flags().Float64Var(&angle, "angle", 0.3, "initial angle spread (rad)")
	robustCmd.Flags().Float64Var(&imbalance, "imbalance", 0.03, "imbalance torque spread")
	robustCmd.Flags().StringVar(&scoreBy, "metric", "settled_error", "metric to score trials by")
	robustCmd.Flags().Float64Var(&limit, "limit", 10, "score at or below which a trial is stable")
	robustCmd.Flags().IntVar(&workers, "workers", 0, "parallel simulations (0 = all cpus)")

	return []*cobra.Command{tuneCmd, robustCmd}
}

// parseGrid turns "kp=0.3,0.6" flags into a sweep.
func parseGrid(flags []string) (*optim.Sweep, error) {
	sweep := &optim.Sweep{Params: map[string][]float64{}}
	for _, f := range flags {
		name, list, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("bad --grid %q, want field=v1,v2", f)
		}
		for _, s := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("bad --grid value %q for %s", s, name)
			}
			sweep.Params[name] = append(sweep.Params[name], v)
		}
	}
	return sweep, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var sweep *optim.Sweep
	if sweepFile != "" {
		if sweep, err = optim.LoadSweep(sweepFile); err != nil {
			return err
		}
	} else {
		if len(gridFlags) == 0 {
			return fmt.Errorf("nothing to search: give --grid or --sweep")
		}
		if sweep, err = parseGrid(gridFlags); err != nil {
			return err
		}
		sweep.Metric = metric
	}
	if cmd.Flags().Changed("metric") {
		sweep.Metric = metric
	}
	if cmd.Flags().Changed("workers") || sweep.Workers == 0 {
		sweep.Workers = workers
	}

	grid, err := sweep.Grid()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("searching %d tunings by %s...\n", len(grid.Points()), sweep.Metric)
	cands, err := grid.Search(ctx, *cfg, sweep.Metric, sweep.Workers)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(sweep.Params))
	for name := range sweep.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\t"+strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(sweep.Metric))
	for i, c := range cands {
		if i >= top {
			break
		}
		row := []string{strconv.Itoa(i + 1)}
		for _, name := range names {
			row = append(row, strconv.FormatFloat(c.Point[name], 'g', 4, 64))
		}
		score := fmt.Sprintf("%.4f", c.Score)
		switch {
		case c.Aborted:
			score = "aborted"
		case c.Trips > 0:
			score = fmt.Sprintf("%d trips", c.Trips)
		}
		fmt.Fprintln(w, strings.Join(append(row, score), "\t"))
	}
	return w.Flush()
}

func runRobust(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	mc := optim.MonteCarloConfig{
		Trials:    trials,
		Seed:      mcSeed,
		Angle:     angle,
		Imbalance: imbalance,
		Workers:   workers,
	}
	fmt.Printf("running %d perturbed trials...\n", trials)
	results, err := optim.MonteCarlo(ctx, *cfg, mc, scoreBy)
	if err != nil {
		return err
	}

	s := optim.Summarize(results, limit)
	fmt.Printf("stable:  %d/%d (%s <= %.2f)\n", s.Stable, s.Trials, scoreBy, limit)
	fmt.Printf("tripped: %d\n", s.Tripped)
	fmt.Printf("aborted: %d\n", s.Aborted)
	if s.Stable > 0 {
		fmt.Printf("mean %s: %.4f\n", scoreBy, s.Mean)
	}
	fmt.Printf("worst %s: %.4f\n", scoreBy, s.Worst)
	return nil
}
