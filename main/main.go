package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path"
	"runtime/pprof"
	"syscall"

	plt "github.com/phil-mansfield/pyplot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phil-mansfield/gomarker"
	"github.com/phil-mansfield/gomarker/advect"
	"github.com/phil-mansfield/gomarker/comm"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/io"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/topology"
)

var (
	configFile string
	plotFile   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "gomarker",
	Short: "Advect Lagrangian markers through a decomposed mesh",
	Long: `gomarker seeds composition markers in a structured Cartesian or
spherical mesh split across processes, advects them through an analytic
velocity field, and projects them back onto nodal fields.

Print a documented configuration file with 'gomarker example-config'.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a marker simulation described by a configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMain(configFile)
	},
}

var exampleCmd = &cobra.Command{
	Use:   "example-config",
	Short: "Print an example run configuration file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(io.ExampleRunFile)
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot restart-file...",
	Short: "Plot marker positions from restart files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return plotMain(args, plotFile)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "run configuration file")
	runCmd.MarkFlagRequired("config")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	plotCmd.Flags().StringVarP(&plotFile, "out", "o", "markers.png", "output image")

	rootCmd.AddCommand(runCmd, exampleCmd, plotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// FileGroup holds the files which stay open for the whole run.
type FileGroup struct {
	prof *os.File
}

func (fg *FileGroup) Close() error {
	if fg.prof == nil {
		return nil
	}
	pprof.StopCPUProfile()
	return fg.prof.Close()
}

// restartFile returns the restart file of a rank.
func restartFile(prefix string, rank int) string {
	return fmt.Sprintf("%s.%d", prefix, rank)
}

// run holds everything every rank shares.
type run struct {
	wrap *io.RunWrapper
	sys  mesh.System
	axes [3][]float64
	d    *topology.Decomposition
	flow advect.Flow
	log  *zap.Logger
}

func runMain(file string) error {
	wrap, err := io.ReadRunConfig(file)
	if err != nil {
		return err
	}
	con := &wrap.Run

	logger, err := io.NewLogger(con.LogFile, con.Verbose || verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fg := &FileGroup{}
	defer fg.Close()
	if con.ValidProfileFile() {
		if fg.prof, err = os.Create(con.ProfileFile); err != nil {
			return err
		}
		if err = pprof.StartCPUProfile(fg.prof); err != nil {
			return err
		}
	}

	r := &run{wrap: wrap, log: logger}
	if r.sys, err = wrap.Mesh.CoordinateSystem(); err != nil {
		return err
	}
	if r.d, err = wrap.Mesh.Decomposition(); err != nil {
		return err
	}
	if r.axes, err = wrap.Mesh.Axes(); err != nil {
		return err
	}
	var lo, hi geom.Vec
	for i, xs := range r.axes {
		lo[i], hi[i] = xs[0], xs[len(xs)-1]
	}
	if r.flow, err = advect.NewFlow(con.Flow, con.FlowSpeed, lo, hi); err != nil {
		return err
	}
	if err := os.MkdirAll(con.Output, 0755); err != nil {
		return err
	}

	logger.Info("starting run",
		zap.String("config", file), zap.Stringer("decomposition", r.d),
		zap.Stringer("system", r.sys), zap.Int("steps", con.Steps),
	)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	err = comm.NewCluster(r.d.Size()).Run(ctx, r.rank)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}
	logger.Info("finished run", zap.String("output", con.Output))
	return nil
}

// rank runs the markers of one process.
func (r *run) rank(ctx context.Context, t comm.Transport) error {
	con, mcon := &r.wrap.Run, &r.wrap.Markers
	me := t.Rank()

	m, err := mesh.New(r.sys, r.axes, r.d, me)
	if err != nil {
		return err
	}
	tr, err := gomarker.New(ctx, mcon, m, r.d, t, r.log)
	if err != nil {
		return err
	}

	if con.ValidInput() {
		if err := tr.Load(ctx, restartFile(con.Input, me)); err != nil {
			return err
		}
	} else if err := r.seed(ctx, tr, me); err != nil {
		return err
	}

	v := advect.SampleField(m, r.flow)
	for tr.Step() < con.Steps {
		if err := tr.AdvancePredictor(ctx, v, con.Timestep); err != nil {
			return err
		}
		if err := tr.AdvanceCorrector(ctx, v, con.Timestep); err != nil {
			return err
		}

		if con.RestartInterval > 0 && tr.Step()%con.RestartInterval == 0 {
			prefix := path.Join(con.Output, fmt.Sprintf("restart_%05d", tr.Step()))
			if err := tr.Save(restartFile(prefix, me)); err != nil {
				return err
			}
		}
	}

	fields := tr.NewFields()
	if err := tr.ProjectFields(ctx, fields); err != nil {
		return err
	}
	return tr.Save(restartFile(path.Join(con.Output, "restart"), me))
}

// seed places new markers. The nodes rule and dense-only seeding both start
// from a nodal composition which is dense at or below CompositionDepth.
func (r *run) seed(ctx context.Context, tr *gomarker.Tracers, rank int) error {
	mcon := &r.wrap.Markers
	l, err := mcon.Layout()
	if err != nil {
		return err
	}
	s, err := mcon.Seeder(l)
	if err != nil {
		return err
	}

	m := tr.Mesh()
	if s.Rule == marker.Nodes || mcon.DenseOnly {
		s.Composition = make([]float64, m.Nodes())
		for n := range s.Composition {
			if m.NodePos(n)[2] <= mcon.CompositionDepth {
				s.Composition[n] = 1
			}
		}
	}

	rng := rand.New(rand.NewSource(r.wrap.Run.Seed + int64(rank)))
	return tr.Seed(ctx, s, rng)
}

func plotMain(files []string, out string) error {
	var xs, zs [2][]float64
	hd := &marker.RestartHeader{}

	for _, file := range files {
		if err := marker.ReadRestartHeader(file, hd); err != nil {
			return err
		}
		l := marker.Layout{Flavors: int(hd.Flavors), Strain: int(hd.StrainCols)}
		set := marker.NewSet(int(hd.Count))
		ce := make([]float64, hd.Elements)
		if _, err := marker.ReadRestart(file, l, set, ce); err != nil {
			return err
		}

		for _, mk := range set.Markers() {
			c := 0
			if mk.Comp == 1 {
				c = 1
			}
			xs[c] = append(xs[c], mk.Pos[0])
			zs[c] = append(zs[c], mk.Pos[2])
		}
	}

	plt.Figure(plt.FigSize(8, 8))
	plt.Plot(xs[0], zs[0], "ow")
	plt.Plot(xs[1], zs[1], "ok")
	plt.Title(fmt.Sprintf(
		"%d ambient and %d dense markers, step %d", len(xs[0]), len(xs[1]),
		hd.Step,
	))
	plt.XLabel(`$X$`, plt.FontSize(16))
	plt.YLabel(`$Z$`, plt.FontSize(16))
	plt.SaveFig(out)
	plt.Execute()
	return nil
}
