/*package gomarker tracks Lagrangian markers through a domain-decomposed
finite element mesh.

A Tracers value owns the markers of one process. Each timestep the field
solver calls AdvancePredictor and AdvanceCorrector with its nodal velocity,
then ProjectFields to turn the markers back into nodal composition, flavor
and strain fields.
*/
package gomarker

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/gomarker/advect"
	"github.com/phil-mansfield/gomarker/comm"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/halo"
	"github.com/phil-mansfield/gomarker/io"
	"github.com/phil-mansfield/gomarker/locate"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/migrate"
	"github.com/phil-mansfield/gomarker/project"
	"github.com/phil-mansfield/gomarker/topology"
)

// Tracers owns the markers of one process and the buffers used to advance,
// migrate and project them.
type Tracers struct {
	con    *io.MarkerConfig
	layout marker.Layout

	t   comm.Transport
	m   *mesh.Mesh
	loc *locate.Localizer
	x   *halo.Exchanger
	w   *mesh.Weights

	in   *advect.Integrator
	mig  *migrate.Engine
	proj *project.Projector

	set  *marker.Set
	step int
	time float64

	log *zap.Logger
}

// Fields are the nodal fields produced by ProjectFields. Flavor and Strain
// are nil when the run does not track them.
type Fields struct {
	Composition []float64
	Flavor      [][]int
	Strain      []float64
}

// New creates the Tracers of the process t.Rank(). m must be the local mesh
// of that rank under d. Creating Tracers is collective: every rank must call
// New before any of them can return.
func New(
	ctx context.Context, con *io.MarkerConfig, m *mesh.Mesh,
	d *topology.Decomposition, t comm.Transport, log *zap.Logger,
) (*Tracers, error) {
	if log == nil {
		log = zap.NewNop()
	}
	layout, err := con.Layout()
	if err != nil {
		return nil, err
	}

	me := t.Rank()
	nb := d.Neighbors(me)
	loc := locate.New(m, d, me)
	tr := &Tracers{
		con: con, layout: layout, t: t, m: m, loc: loc,
		x:   halo.New(t, m, d, nb),
		in:  advect.New(loc, layout),
		log: log.With(zap.Int("rank", me)),
	}

	tr.w, err = mesh.LumpedWeights(ctx, m, tr.x)
	if err != nil {
		return nil, err
	}

	elems := m.Elements()
	capacity := con.Capacity(elems)
	tr.set = marker.NewSet(capacity)
	tr.mig = migrate.New(
		t, tr.loc, nb, layout, con.Nominal(elems), capacity, tr.log,
	)

	tr.log.Debug("created tracers",
		zap.Int("elements", elems), zap.Int("capacity", capacity),
		zap.Int("neighbors", nb.Len()), zap.Int("shared", tr.x.Shared()),
		zap.Int("buffer", tr.mig.BufferCap()),
	)
	return tr, nil
}

// Mesh returns the local mesh.
func (tr *Tracers) Mesh() *mesh.Mesh { return tr.m }

// Markers returns the local marker array.
func (tr *Tracers) Markers() *marker.Set { return tr.set }

// Step returns the number of completed timesteps.
func (tr *Tracers) Step() int { return tr.step }

// Time returns the simulation time reached by the completed timesteps.
func (tr *Tracers) Time() float64 { return tr.time }

// Projector returns the field projector. It is nil until Seed or Load has
// been called.
func (tr *Tracers) Projector() *project.Projector { return tr.proj }

// Seed fills the local subdomain with new markers. Seeding is collective.
func (tr *Tracers) Seed(
	ctx context.Context, s *marker.Seeder, rng *rand.Rand,
) error {
	tr.set.Reset()
	var err error
	if tr.con.DenseOnly {
		err = s.DenseOnly(tr.set, tr.loc, rng, tr.con.MarkersPerElement)
	} else {
		err = s.Uniform(tr.set, tr.loc, rng, tr.con.Nominal(tr.m.Elements()))
	}
	if err != nil {
		return err
	}
	tr.log.Debug("seeded markers",
		zap.Stringer("rule", s.Rule), zap.Int("count", tr.set.Len()),
	)
	return tr.initProjector(ctx)
}

// initProjector creates the projector once the global flavor range is known.
func (tr *Tracers) initProjector(ctx context.Context) error {
	maxFlavor := 0
	for _, mk := range tr.set.Markers() {
		for _, fl := range mk.Flavors[:tr.layout.Flavors] {
			if fl > maxFlavor {
				maxFlavor = fl
			}
		}
	}
	global, err := comm.Allreduce(ctx, tr.t, int64(maxFlavor), comm.Max)
	if err != nil {
		return err
	}

	tr.proj, err = project.New(
		tr.con, tr.layout, tr.m, tr.w, tr.x, int(global), tr.log,
	)
	if err != nil {
		return err
	}
	if tr.t.Rank() == 0 && tr.layout.Flavors > 0 {
		tr.log.Info("chose flavor projection",
			zap.Stringer("method", tr.proj.Method()),
			zap.Int64("maxFlavor", global),
		)
	}
	return nil
}

// AdvancePredictor moves every marker's predicted position a full step along
// v, hands markers whose predicted positions left the subdomain to their new
// owners, and resolves the predicted elements.
func (tr *Tracers) AdvancePredictor(
	ctx context.Context, v advect.VelocityField, dt float64,
) error {
	if err := tr.in.Predict(v, tr.set, dt); err != nil {
		return err
	}
	if err := tr.migrate(ctx, migrate.Predicted); err != nil {
		return err
	}
	return tr.relocalize(migrate.Predicted)
}

// AdvanceCorrector completes the timestep started by AdvancePredictor with
// the updated velocity v. The global marker count is logged every
// DiagnosticInterval steps.
func (tr *Tracers) AdvanceCorrector(
	ctx context.Context, v advect.VelocityField, dt float64,
) error {
	if err := tr.in.Correct(v, tr.set, dt); err != nil {
		return err
	}
	if err := tr.migrate(ctx, migrate.Current); err != nil {
		return err
	}
	if err := tr.relocalize(migrate.Current); err != nil {
		return err
	}

	tr.step++
	tr.time += dt
	if tr.con.DiagnosticInterval > 0 && tr.step%tr.con.DiagnosticInterval == 0 {
		n, err := tr.GlobalCount(ctx)
		if err != nil {
			return err
		}
		if tr.t.Rank() == 0 {
			tr.log.Info("global marker count",
				zap.Int("step", tr.step), zap.Float64("time", tr.time),
				zap.Int("markers", n),
			)
		}
	}
	return nil
}

func (tr *Tracers) migrate(ctx context.Context, ph migrate.Phase) error {
	_, err := tr.mig.Migrate(ctx, tr.set, ph)
	if err != nil {
		tr.log.Error("migration failed",
			zap.Stringer("phase", ph), zap.Int("step", tr.step), zap.Error(err),
		)
	}
	return err
}

// relocalize resolves the element of every marker from its predicted or
// current position.
func (tr *Tracers) relocalize(ph migrate.Phase) error {
	ms := tr.set.Markers()
	for i := range ms {
		p := ms[i].Pos
		if ph == migrate.Predicted {
			p = ms[i].Pred
		}
		el, _, err := tr.loc.Element(p)
		if err != nil {
			return fmt.Errorf("%s marker %d: %w", ph, i, err)
		}
		ms[i].Elem = el
	}
	return nil
}

// GlobalCount returns the number of markers on every process. It is
// collective.
func (tr *Tracers) GlobalCount(ctx context.Context) (int, error) {
	n, err := comm.Allreduce(ctx, tr.t, int64(tr.set.Len()), comm.Sum)
	return int(n), err
}

// NewFields allocates Fields sized for the local mesh.
func (tr *Tracers) NewFields() *Fields {
	n := tr.m.Nodes()
	f := &Fields{Composition: make([]float64, n)}
	if tr.layout.Flavors > 0 {
		f.Flavor = make([][]int, tr.layout.Flavors)
		for k := range f.Flavor {
			f.Flavor[k] = make([]int, n)
		}
	}
	if tr.layout.Strain > 0 {
		f.Strain = make([]float64, n)
	}
	return f
}

// ProjectFields writes the nodal fields of the current marker distribution
// into f. It is collective.
func (tr *Tracers) ProjectFields(ctx context.Context, f *Fields) error {
	if tr.proj == nil {
		return fmt.Errorf("fields projected before markers were seeded")
	}
	if err := tr.proj.Composition(ctx, tr.set, f.Composition); err != nil {
		return err
	}
	if f.Flavor != nil {
		if err := tr.proj.Flavor(ctx, tr.set, f.Flavor); err != nil {
			return err
		}
	}
	if f.Strain != nil {
		if err := tr.proj.Strain(ctx, tr.set, f.Strain); err != nil {
			return err
		}
	}

	if ce := f.Composition; len(ce) > 0 {
		tr.log.Debug("projected composition",
			zap.Int("step", tr.step), zap.Float64("min", floats.Min(ce)),
			zap.Float64("max", floats.Max(ce)),
			zap.Float64("mean", floats.Sum(ce)/float64(len(ce))),
		)
	}
	return nil
}

// Save writes the local markers to a restart file.
func (tr *Tracers) Save(file string) error {
	if tr.proj == nil {
		return fmt.Errorf("restart file %s written before markers were seeded", file)
	}
	hd := &marker.RestartHeader{
		Rank: int64(tr.t.Rank()), Size: int64(tr.t.Size()),
		Step: int64(tr.step), Time: tr.time,
	}
	return marker.WriteRestart(
		file, hd, tr.layout, tr.set, tr.proj.ElementComposition(),
	)
}

// Load replaces the local markers with the contents of a restart file
// written by Save on the same rank. Positions are clamped into the local
// subdomain and elements are resolved again. Loading is collective.
func (tr *Tracers) Load(ctx context.Context, file string) error {
	ce := make([]float64, tr.m.Elements())
	hd, err := marker.ReadRestart(file, tr.layout, tr.set, ce)
	if err != nil {
		return err
	}
	if hd.Rank != int64(tr.t.Rank()) || hd.Size != int64(tr.t.Size()) {
		return fmt.Errorf(
			"restart file %s belongs to rank %d of %d, not rank %d of %d",
			file, hd.Rank, hd.Size, tr.t.Rank(), tr.t.Size(),
		)
	}

	lo, hi := tr.m.Lo(), tr.m.Hi()
	ms := tr.set.Markers()
	for i := range ms {
		for k := 0; k < 3; k++ {
			ms[i].Pos[k] = geom.Clamp(ms[i].Pos[k], lo[k], hi[k])
		}
		ms[i].Pred = ms[i].Pos
	}
	if err := tr.relocalize(migrate.Current); err != nil {
		return err
	}
	tr.step, tr.time = int(hd.Step), hd.Time

	if err := tr.initProjector(ctx); err != nil {
		return err
	}
	return tr.proj.SetElementComposition(ce)
}
