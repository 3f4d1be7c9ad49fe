package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nnaccel/accel"
	"github.com/sarchlab/nnaccel/accel/compute"
	"github.com/sarchlab/nnaccel/accel/sched"
	"github.com/sarchlab/nnaccel/config"
	"github.com/sarchlab/nnaccel/datarecording"
	"github.com/sarchlab/nnaccel/monitoring"
	"github.com/sarchlab/nnaccel/sim/id"
	"github.com/sarchlab/nnaccel/sim/timing"
	"github.com/sarchlab/nnaccel/tracing"
)

var runFlags struct {
	mode         string
	data         string
	seed         uint64
	feedback     bool
	requantShift uint
	traceDB      string
	maxCycles    uint64
	uniqueIDs    bool
	monitor      bool
	monitorPort  int
	openBrowser  bool
	dims         sched.Dims
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one session of the accelerator and report its phases.",
	Long: "`run` fills the weight and feature stores, starts a session in " +
		"the selected mode, and runs the engine until the done pulse. With " +
		"--feedback a second session reads its features from the results " +
		"of the first.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := applyRunFlags(cmd, cfg)
		if err != nil {
			return err
		}

		return simulate(c, cmd.OutOrStdout(), logger)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.mode, "mode", "conv", "conv or matmul")
	f.StringVar(&runFlags.data, "data", config.DataRandom,
		"fill the stores with random or zero words")
	f.Uint64Var(&runFlags.seed, "seed", 1, "seed of the random data")
	f.BoolVar(&runFlags.feedback, "feedback", false,
		"run a second session that reads the results of the first")
	f.UintVar(&runFlags.requantShift, "requant-shift", 0,
		"requantize layer-1 words by this right shift")
	f.StringVar(&runFlags.traceDB, "trace-db", "",
		"record phase traces into this SQLite file (without extension)")
	f.Uint64Var(&runFlags.maxCycles, "max-cycles", 0,
		"stop a session after this many cycles, 0 for no limit")
	f.BoolVar(&runFlags.uniqueIDs, "unique-ids", false,
		"use globally unique IDs instead of sequential ones")
	f.BoolVar(&runFlags.monitor, "monitor", false, "start the web monitor")
	f.IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"port of the web monitor, 0 for a random one")
	f.BoolVar(&runFlags.openBrowser, "open-browser", false,
		"open the web monitor in a browser")

	d := sched.DefaultDims()
	f.IntVar(&runFlags.dims.ConvKernels, "conv-kernels", d.ConvKernels,
		"number of convolution kernels")
	f.IntVar(&runFlags.dims.ConvRowGroups, "conv-row-groups", d.ConvRowGroups,
		"number of convolution row groups")
	f.IntVar(&runFlags.dims.ConvChunks, "conv-chunks", d.ConvChunks,
		"number of convolution chunks per row group")
	f.IntVar(&runFlags.dims.MatmulRowGroups, "matmul-row-groups",
		d.MatmulRowGroups, "number of matmul row groups")
	f.IntVar(&runFlags.dims.MatmulL1Cols, "matmul-l1-cols", d.MatmulL1Cols,
		"number of layer-1 columns")
	f.IntVar(&runFlags.dims.MatmulL2Cols, "matmul-l2-cols", d.MatmulL2Cols,
		"number of layer-2 columns")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides c with the flags given on the command line.
func applyRunFlags(cmd *cobra.Command, c config.Config) (config.Config, error) {
	changed := cmd.Flags().Changed

	if changed("mode") {
		m, err := sched.ParseMode(runFlags.mode)
		if err != nil {
			return c, err
		}

		c.Mode = m
	}

	if changed("data") {
		c.Data = runFlags.data
	}

	if changed("seed") {
		c.Seed = runFlags.seed
	}

	if changed("feedback") {
		c.Feedback = runFlags.feedback
	}

	if changed("requant-shift") {
		c.RequantShift = runFlags.requantShift
	}

	if changed("trace-db") {
		c.TraceDB = runFlags.traceDB
	}

	if changed("max-cycles") {
		c.MaxCycles = runFlags.maxCycles
	}

	if changed("unique-ids") {
		c.UniqueIDs = runFlags.uniqueIDs
	}

	if changed("monitor") {
		c.Monitor = runFlags.monitor
	}

	if changed("monitor-port") {
		c.MonitorPort = runFlags.monitorPort
	}

	if changed("open-browser") {
		c.OpenBrowser = runFlags.openBrowser
	}

	dimFlags := []struct {
		name string
		src  int
		dst  *int
	}{
		{"conv-kernels", runFlags.dims.ConvKernels, &c.Dims.ConvKernels},
		{"conv-row-groups", runFlags.dims.ConvRowGroups, &c.Dims.ConvRowGroups},
		{"conv-chunks", runFlags.dims.ConvChunks, &c.Dims.ConvChunks},
		{"matmul-row-groups", runFlags.dims.MatmulRowGroups, &c.Dims.MatmulRowGroups},
		{"matmul-l1-cols", runFlags.dims.MatmulL1Cols, &c.Dims.MatmulL1Cols},
		{"matmul-l2-cols", runFlags.dims.MatmulL2Cols, &c.Dims.MatmulL2Cols},
	}
	for _, d := range dimFlags {
		if changed(d.name) {
			*d.dst = d.src
		}
	}

	return c, c.Validate()
}

type simulation struct {
	cfg    config.Config
	out    io.Writer
	logger *slog.Logger

	engine *timing.SerialEngine
	accel  *accel.Accelerator

	phases  *tracing.PhaseStatsTracer
	compute *tracing.BusyTimeTracer

	recorder datarecording.DataRecorder
	exec     *datarecording.ExecRecorder
	dbTracer *tracing.DBTracer
	monitor  *monitoring.Monitor
}

func simulate(c config.Config, out io.Writer, logger *slog.Logger) error {
	s := &simulation{cfg: c, out: out, logger: logger}

	s.build()

	if err := s.attachRecorder(); err != nil {
		return err
	}
	defer s.closeRecorder()

	if err := s.startMonitor(); err != nil {
		return err
	}
	defer s.stopMonitor()

	if err := s.fillStores(); err != nil {
		return err
	}

	if err := s.runSession(); err != nil {
		return err
	}

	if c.Feedback {
		if err := s.accel.SetFeedback(true); err != nil {
			return err
		}

		if err := s.runSession(); err != nil {
			return err
		}
	}

	s.engine.Finished()
	s.report()

	return nil
}

func (s *simulation) build() {
	if s.cfg.UniqueIDs {
		id.UseGenerator(id.NewParallelIDGenerator())
	} else {
		id.UseGenerator(id.NewIDGenerator())
	}

	s.engine = timing.NewSerialEngine()
	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.engine.AcceptHook(timing.NewEventLogger(s.logger))
	}

	b := accel.MakeBuilder().
		WithEngine(s.engine).
		WithDims(s.cfg.Dims).
		WithLogger(s.logger)

	if s.cfg.RequantShift > 0 {
		b = b.WithPostProcessor(compute.Requantize{
			Shift: s.cfg.RequantShift,
			Max:   s.cfg.RequantMax,
		})
	}

	s.accel = b.Build("Accel")

	s.phases = tracing.NewPhaseStatsTracer(s.engine,
		tracing.KindFilter(tracing.KindPhase))
	tracing.CollectTrace(s.accel, s.phases)

	s.compute = tracing.NewBusyTimeTracer(s.engine, tracing.WhatFilter(
		sched.StateConvCompute.String(),
		sched.StateMatmulComputeL1.String(),
		sched.StateMatmulComputeL2.String(),
	))
	tracing.CollectTrace(s.accel, s.compute)
}

func (s *simulation) attachRecorder() error {
	if s.cfg.TraceDB == "" {
		return nil
	}

	rec, err := datarecording.New(s.cfg.TraceDB)
	if err != nil {
		return fmt.Errorf("create trace database: %w", err)
	}

	s.recorder = rec
	s.exec = datarecording.NewExecRecorder(rec)
	s.exec.Start()
	s.exec.Note("Mode", s.cfg.Mode.String())
	s.exec.Note("Data", s.cfg.Data)
	s.exec.Note("Seed", strconv.FormatUint(s.cfg.Seed, 10))
	s.exec.Note("Dims", fmt.Sprintf("%+v", s.cfg.Dims))

	s.dbTracer = tracing.NewDBTracer(s.engine, rec, nil)
	tracing.CollectTrace(s.accel, s.dbTracer)

	return nil
}

func (s *simulation) closeRecorder() {
	if s.recorder == nil {
		return
	}

	s.dbTracer.Terminate()
	s.exec.End()

	if err := s.recorder.Close(); err != nil {
		s.logger.Error("closing trace database", "err", err)
	}
}

func (s *simulation) startMonitor() error {
	if !s.cfg.Monitor {
		return nil
	}

	s.monitor = monitoring.NewMonitor().
		WithPortNumber(s.cfg.MonitorPort).
		WithLogger(s.logger)
	s.monitor.RegisterEngine(s.engine)
	s.monitor.RegisterAccelerator(s.accel)

	if _, err := s.monitor.StartServer(); err != nil {
		return err
	}

	if s.cfg.OpenBrowser {
		if err := s.monitor.OpenInBrowser(); err != nil {
			s.logger.Warn("cannot open browser", "err", err)
		}
	}

	return nil
}

func (s *simulation) stopMonitor() {
	if s.monitor == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.monitor.StopServer(ctx); err != nil {
		s.logger.Warn("stopping monitor", "err", err)
	}
}

func (s *simulation) fillStores() error {
	weights := make([]uint32, accel.WeightStoreWords)
	features := make([]uint32, accel.FeatureStoreWords)

	if s.cfg.Data == config.DataRandom {
		rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
		for i := range weights {
			weights[i] = rng.Uint32()
		}

		for i := range features {
			features[i] = rng.Uint32()
		}
	}

	if err := s.accel.LoadWeights(0, weights); err != nil {
		return err
	}

	return s.accel.LoadFeatures(0, features)
}

func (s *simulation) runSession() error {
	if err := s.accel.Start(s.cfg.Mode); err != nil {
		return err
	}

	var err error
	if s.cfg.MaxCycles > 0 {
		limit := s.engine.CurrentTime() + timing.VTimeInCycle(s.cfg.MaxCycles)
		err = s.engine.RunUntil(limit)
	} else {
		err = s.engine.Run()
	}

	if err != nil {
		ctrl := s.accel.Controller()
		return fmt.Errorf("run %s session, stopped in %s with %+v: %w",
			s.cfg.Mode, ctrl.State(), ctrl.Counters(), err)
	}

	return nil
}

func (s *simulation) report() {
	s.compute.TerminateAllTasks(s.engine.CurrentTime())

	var total timing.VTimeInCycle

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "session\tmode\tcycles\tresult words\tcolumn loads\t")

	for _, sess := range s.accel.Sessions() {
		cycles := sess.Cycles(sess.EndCycle)
		total += cycles
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t\n",
			sess.ID, sess.Mode, cycles, sess.ResultWords, sess.ColumnLoads)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "phase\tcount\tcycles\t")

	for _, p := range s.phases.Stats() {
		fmt.Fprintf(w, "%s\t%d\t%d\t\n", p.What, p.Count, p.Cycles)
	}

	w.Flush()

	if total > 0 {
		fmt.Fprintf(s.out, "\ncompute busy %d of %d cycles (%.2f%%)\n",
			s.compute.BusyTime(), total,
			100*float64(s.compute.BusyTime())/float64(total))
	}

	results, err := s.accel.ReadResults(0, accel.ResultStoreWords)
	if err != nil {
		s.logger.Error("reading results", "err", err)
		return
	}

	var digest uint32
	for i, v := range results {
		digest = (digest*31 + v) ^ uint32(i)
	}

	fmt.Fprintf(s.out, "result digest 0x%08x\n", digest)
}
