package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/flowpipe/internal/audit"
	"github.com/san-kum/flowpipe/internal/config"
	"github.com/san-kum/flowpipe/internal/lotov"
	"github.com/san-kum/flowpipe/internal/metrics"
	"github.com/san-kum/flowpipe/internal/oracle"
	"github.com/san-kum/flowpipe/internal/reach"
	"github.com/san-kum/flowpipe/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dataDir string
	verbose int
	workers int
	solver  string

	// run
	configFile string
	timeStep   float64
	horizon    float64
	numSteps   int
	directions string
	order      int
	baseRing   string
	dirSeed    int64
	noSave     bool

	// show
	showDirs []int

	// project
	projStep  int
	projAll   bool
	xAxis     int
	yAxis     int
	tolerance float64
	absolute  bool
	maxIter   int

	// audit
	trajectories int
	substeps     int
	slack        float64
	auditSeed    int64

	// export-json
	outPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, statusFail.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flowpipe",
		Short:         "reachability of linear systems with support functions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".flowpipe", "data directory")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "log progress to stderr (-vv for debug)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "concurrent workers (0 = all CPUs)")
	rootCmd.PersistentFlags().StringVar(&solver, "solver", oracle.DefaultSolver, "LP backend")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "compute and store a flowpipe",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFlowpipe,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "problem file path (yaml)")
	runCmd.Flags().Float64Var(&timeStep, "step", config.DefaultTimeStep, "time step τ")
	runCmd.Flags().Float64Var(&horizon, "horizon", config.DefaultTimeHorizon, "time horizon T")
	runCmd.Flags().IntVar(&numSteps, "steps", 0, "number of time steps (overrides --horizon)")
	runCmd.Flags().StringVar(&directions, "directions", "box", "template directions: box, oct, random")
	runCmd.Flags().IntVar(&order, "order", 0, "number of random directions")
	runCmd.Flags().StringVar(&baseRing, "ring", config.DefaultBaseRing, "base ring: float or rational")
	runCmd.Flags().Int64Var(&dirSeed, "seed", 0, "random direction seed")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "print the summary without storing the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "plot support envelopes of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntSliceVar(&showDirs, "direction", nil, "direction indices to plot (default: up to four)")

	projectCmd := &cobra.Command{
		Use:   "project [run_id]",
		Short: "project flowpipe polytopes onto two coordinates",
		Args:  cobra.ExactArgs(1),
		RunE:  projectRun,
	}
	projectCmd.Flags().IntVar(&projStep, "step", 0, "time step to project")
	projectCmd.Flags().BoolVar(&projAll, "all", false, "project every time step")
	projectCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for the x-axis")
	projectCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for the y-axis")
	projectCmd.Flags().Float64Var(&tolerance, "tol", 0.01, "gap tolerance")
	projectCmd.Flags().BoolVar(&absolute, "absolute", false, "treat --tol as an absolute distance")
	projectCmd.Flags().IntVar(&maxIter, "max-iterations", lotov.DefaultMaxIterations, "refinement cap")

	auditCmd := &cobra.Command{
		Use:   "audit [run_id]",
		Short: "check a stored flowpipe against simulated trajectories",
		Args:  cobra.ExactArgs(1),
		RunE:  auditRun,
	}
	auditCmd.Flags().IntVar(&trajectories, "trajectories", audit.DefaultTrajectories, "sampled trajectories")
	auditCmd.Flags().IntVar(&substeps, "substeps", audit.DefaultSubsteps, "RK4 steps per time step")
	auditCmd.Flags().Float64Var(&slack, "slack", audit.DefaultTolerance, "allowed constraint violation")
	auditCmd.Flags().Int64Var(&auditSeed, "seed", 1, "sampling seed")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available problem presets",
		RunE:  listPresets,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, projectCmd, auditCmd, presetsCmd, exportJSONCmd)
	return rootCmd
}

// loadProblem picks the problem from --config, a preset name, or the
// default, then applies the flags given explicitly.
func loadProblem(cmd *cobra.Command, args []string) (*config.Problem, error) {
	var p *config.Problem
	switch {
	case configFile != "":
		var err error
		if p, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	case len(args) == 1:
		if p = config.GetPreset(args[0]); p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	default:
		p = config.DefaultProblem()
	}

	flags := cmd.Flags()
	if flags.Changed("step") {
		p.Options.TimeStep = timeStep
	}
	if flags.Changed("horizon") {
		p.Options.TimeHorizon = horizon
		p.Options.NumberOfTimeSteps = 0
	}
	if flags.Changed("steps") {
		p.Options.NumberOfTimeSteps = numSteps
	}
	if flags.Changed("directions") {
		p.Options.Directions.Select = directions
	}
	if flags.Changed("order") {
		p.Options.Directions.Order = order
	}
	if flags.Changed("ring") {
		p.Options.BaseRing = baseRing
	}
	if flags.Changed("seed") {
		p.Options.Seed = dirSeed
	}
	if flags.Changed("solver") {
		p.Options.Solver = solver
	}
	if flags.Changed("workers") {
		p.Options.Workers = workers
	}

	if err := config.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func runFlowpipe(cmd *cobra.Command, args []string) error {
	p, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}
	sys, err := p.LinearSystem()
	if err != nil {
		return err
	}
	x0, err := p.Initial()
	if err != nil {
		return err
	}

	opts := p.ReachOptions()
	opts.Logger = reach.NewLogger(os.Stderr, verbose)

	fmt.Println(titleStyle.Render("flowpipe " + p.Name))
	start := time.Now()
	fp, err := reach.Compute(cmd.Context(), sys, x0, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	summary, err := metrics.Summarize(fp)
	if err != nil {
		return err
	}

	fmt.Println(field("dimension", fp.Dim()))
	fmt.Println(field("directions", len(fp.Directions)))
	fmt.Println(field("time steps", fp.Len()))
	fmt.Println(field("ring", fp.Ring))
	fmt.Println(field("alpha", fmt.Sprintf("%.6g", fp.Alpha)))
	fmt.Println(field("beta", fmt.Sprintf("%.6g", fp.Beta)))
	fmt.Println(field("elapsed", elapsed.Round(time.Microsecond)))
	fmt.Println(field("max extent", fmt.Sprintf("%.6g", summary.Max)))
	fmt.Println(field("growth", fmt.Sprintf("%.4g", summary.Growth)))

	extents := make([]float64, fp.Len())
	for i, poly := range fp.Polytopes {
		extents[i] = metrics.Extent(poly)
	}
	fmt.Println(labelStyle.Render("  extent:        ") + sparkline(extents, 60))

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(p, fp)
	if err != nil {
		return err
	}
	fmt.Println(field("run id", runID))
	return nil
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
	fmt.Fprintln(w, "ID\tNAME\tTIME\tDIM\tDIRS\tSTEPS\tTAU\tRING\tFINGERPRINT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.4g\t%s\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Dim,
			run.Directions,
			run.Steps,
			run.TimeStep,
			run.Ring,
			shortHash(run.Fingerprint),
		)
	}
	return w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	fp, err := st.LoadFlowpipe(runID)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("run " + meta.ID))
	fmt.Println(field("problem", meta.Name))
	fmt.Println(field("fingerprint", shortHash(meta.Fingerprint)))
	fmt.Println(field("interval", fmt.Sprintf("[%g, %g]", fp.InitialTime, fp.InitialTime+float64(fp.Len())*fp.TimeStep)))
	for _, name := range []string{"mean_extent", "max_extent", "growth"} {
		if v, ok := meta.Metrics[name]; ok {
			fmt.Println(field(name, fmt.Sprintf("%.6g", v)))
		}
	}
	fmt.Println()

	dirs := showDirs
	if len(dirs) == 0 {
		for j := 0; j < len(fp.Directions) && j < 4; j++ {
			dirs = append(dirs, j)
		}
	}
	for _, j := range dirs {
		env, err := metrics.Envelope(fp, j)
		if err != nil {
			return err
		}
		if len(env) == 1 {
			env = append(env, env[0])
		}
		graph := asciigraph.Plot(env,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("ρ(d_%d) for d_%d = %s", j, j, formatVector(fp.Directions[j]))),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3g", x)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func projectRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	fp, err := st.LoadFlowpipe(runID)
	if err != nil {
		return err
	}
	o, err := oracle.Lookup(solver)
	if err != nil {
		return err
	}

	steps := []int{projStep}
	if projAll {
		steps = make([]int, fp.Len())
		for i := range steps {
			steps[i] = i
		}
	}
	reqs := make([]lotov.Request, len(steps))
	for k, i := range steps {
		if i < 0 || i >= fp.Len() {
			return fmt.Errorf("time step %d out of range [0, %d)", i, fp.Len())
		}
		reqs[k] = lotov.Request{Polytope: fp.Polytopes[i], I: xAxis, J: yAxis}
	}

	opts := lotov.DefaultOptions()
	opts.Relative = !absolute
	opts.MaxIterations = maxIter

	results, err := lotov.ProjectAll(cmd.Context(), o, reqs, tolerance, opts, workers)
	if err != nil {
		return err
	}

	gaps := make([]float64, len(results))
	for k, res := range results {
		if err := st.SaveProjection(runID, steps[k], res); err != nil {
			return err
		}
		gaps[k] = res.MaxGap()
	}

	if len(results) == 1 {
		res := results[0]
		fmt.Println(headerStyle.Render(fmt.Sprintf("step %d onto (x%d, x%d)", steps[0], xAxis, yAxis)))
		fmt.Println(field("vertices", len(res.Inner)))
		fmt.Println(field("iterations", res.Iterations))
		fmt.Println(field("max gap", fmt.Sprintf("%.3g (tol %.3g)", res.MaxGap(), res.Tolerance)))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nINNER\tOUTER\tGAP")
		for i := range res.Inner {
			fmt.Fprintf(w, "(%.6g, %.6g)\t(%.6g, %.6g)\t%.3g\n",
				res.Inner[i].X, res.Inner[i].Y, res.Outer[i].X, res.Outer[i].Y, res.Gaps[i])
		}
		return w.Flush()
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%d steps onto (x%d, x%d)", len(results), xAxis, yAxis)))
	fmt.Println(labelStyle.Render("  max gap:       ") + sparkline(gaps, 60))
	fmt.Println(subtle.Render(fmt.Sprintf("  stored in %s", dataDir)))
	return nil
}

func auditRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	if meta.Problem == nil {
		return fmt.Errorf("run %s has no stored problem", runID)
	}
	fp, err := st.LoadFlowpipe(runID)
	if err != nil {
		return err
	}
	sys, err := meta.Problem.LinearSystem()
	if err != nil {
		return err
	}
	x0, err := meta.Problem.Initial()
	if err != nil {
		return err
	}
	o, err := oracle.Lookup(solver)
	if err != nil {
		return err
	}

	opts := audit.DefaultOptions()
	opts.Trajectories = trajectories
	opts.Substeps = substeps
	opts.Tolerance = slack
	opts.Seed = auditSeed
	opts.Workers = workers
	opts.Oracle = o
	opts.Logger = reach.NewLogger(os.Stderr, verbose)

	report, err := audit.Run(cmd.Context(), sys, x0, fp, opts)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("audit " + runID))
	fmt.Println(field("trajectories", report.Samples))
	fmt.Println(field("checks", report.Checks))
	fmt.Println(field("worst excess", fmt.Sprintf("%.3g", report.WorstExcess)))
	if report.Sound() {
		fmt.Println(status(true, "every sampled state lies in its polytope"))
		return nil
	}
	fmt.Println(status(false, fmt.Sprintf("%d violations", len(report.Violations))))
	for k, v := range report.Violations {
		if k == 5 {
			fmt.Println(subtle.Render(fmt.Sprintf("  ... %d more", len(report.Violations)-k)))
			break
		}
		fmt.Printf("  trajectory %d, step %d, t = %.4g: %s exceeds by %.3g\n", v.Trajectory, v.Step, v.Time, formatVector(v.State), v.Excess)
	}
	return fmt.Errorf("flowpipe %s failed the audit", runID)
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIM\tINPUT\tDIRECTIONS\tTAU\tHORIZON")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%g\t%g\n",
			name, p.Dim(), p.U != nil, p.Options.Directions.Select, p.Options.TimeStep, p.Options.TimeHorizon)
	}
	return w.Flush()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	fp, err := st.LoadFlowpipe(runID)
	if err != nil {
		return err
	}

	if outPath == "" {
		return storage.WriteJSON(os.Stdout, meta, fp)
	}
	if err := storage.ExportJSON(outPath, meta, fp); err != nil {
		return err
	}
	fmt.Println(subtle.Render("wrote " + outPath))
	return nil
}
