/*package migrate moves markers between the processes of a run after they
cross subdomain boundaries.

A call to Engine.Migrate is collective: every rank must call it with the
same Phase, since it exchanges counts and payloads with all neighbors.
*/
package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/phil-mansfield/gomarker/comm"
	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/locate"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/topology"
)

// Phase selects which position ownership is decided by.
type Phase int

const (
	// Predicted migrates markers by their predicted positions.
	Predicted Phase = iota
	// Current migrates markers by their current positions.
	Current
)

func (ph Phase) String() string {
	if ph == Predicted {
		return "predicted"
	}
	return "current"
}

// Stats summarizes one migration round on one rank.
type Stats struct {
	Sent, Received, Live int
}

type outbox struct {
	idx []int
	buf []byte
}

// Engine owns the transfer buffers of one rank. All buffers are allocated by
// New and never grown.
type Engine struct {
	t      comm.Transport
	loc    *locate.Localizer
	nb     *topology.Neighbors
	layout marker.Layout
	// bufCap is the most markers which may move to or from a single neighbor
	// in one round.
	bufCap int

	out     map[int]*outbox
	leave   []bool
	vacated []int
	recv    []marker.Marker
	log     *zap.Logger
}

// New creates an Engine. nominal is the nominal number of markers on a rank
// and capacity is the size of the marker array it will migrate.
func New(
	t comm.Transport, loc *locate.Localizer, nb *topology.Neighbors,
	layout marker.Layout, nominal, capacity int, log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		t: t, loc: loc, nb: nb, layout: layout,
		bufCap: nominal/10 + 1,
		out:    map[int]*outbox{},
		leave:  make([]bool, capacity),
		log:    log,
	}
	for _, r := range nb.Ranks {
		e.out[r] = &outbox{
			idx: make([]int, 0, e.bufCap),
			buf: make([]byte, 0, e.bufCap*layout.RecordSize()),
		}
	}
	e.vacated = make([]int, 0, e.bufCap*nb.Len())
	e.recv = make([]marker.Marker, 0, e.bufCap*nb.Len())
	return e
}

// BufferCap returns the per-neighbor transfer limit.
func (e *Engine) BufferCap() int { return e.bufCap }

// Migrate sends every marker which has left the local subdomain to the
// neighbor which owns it, receives the markers neighbors send here, and
// compacts set so that live markers are contiguous. Received markers keep
// the element index assigned by their sender and must be re-localized.
func (e *Engine) Migrate(
	ctx context.Context, set *marker.Set, ph Phase,
) (Stats, error) {
	me := e.t.Rank()
	if set.Cap() > len(e.leave) {
		return Stats{}, fault.Capacityf(
			me, "marker array capacity %d exceeds the migration capacity %d.",
			set.Cap(), len(e.leave),
		)
	}

	departing, err := e.flag(set, ph)
	if err != nil {
		return Stats{}, err
	}
	for _, r := range e.nb.Ranks {
		ob := e.out[r]
		ob.buf = ob.buf[:0]
		for _, i := range ob.idx {
			ob.buf = e.layout.Append(ob.buf, set.At(i))
		}
	}

	counts, err := e.exchangeCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	received := 0
	for _, c := range counts {
		received += c
	}
	n := set.Len()
	if next := n + received - departing; next > set.Cap() {
		return Stats{}, fault.Capacityf(
			me, "%d markers after migration (%d + %d - %d) exceeds the "+
				"capacity of %d.", next, n, received, departing, set.Cap(),
		)
	}

	if err := e.exchangePayloads(ctx, counts); err != nil {
		return Stats{}, err
	}
	if err := e.splice(set, departing); err != nil {
		return Stats{}, err
	}

	st := Stats{Sent: departing, Received: received, Live: set.Len()}
	if departing > 0 || received > 0 {
		e.log.Debug("migrated markers",
			zap.Stringer("phase", ph), zap.Int("sent", st.Sent),
			zap.Int("received", st.Received), zap.Int("live", st.Live),
		)
	}
	return st, nil
}

// flag adjusts the positions of markers in boundary elements and flags those
// owned by other ranks. It returns the number of flagged markers.
func (e *Engine) flag(set *marker.Set, ph Phase) (int, error) {
	for _, ob := range e.out {
		ob.idx = ob.idx[:0]
	}

	me, m := e.t.Rank(), e.loc.Mesh()
	ms := set.Markers()
	departing := 0
	for i := range ms {
		mk := &ms[i]
		if !m.Boundary(mk.Elem) {
			continue
		}
		p := &mk.Pos
		if ph == Predicted {
			p = &mk.Pred
		}
		e.adjust(p)

		owner := e.loc.LocateOwner(*p)
		if owner == me {
			continue
		}
		ob, ok := e.out[owner]
		if !ok {
			return 0, fault.Topologyf(
				me, "marker at %v belongs to rank %d, which is not among "+
					"the neighbors %v.", *p, owner, e.nb.Ranks,
			)
		}
		if len(ob.idx) == e.bufCap {
			return 0, fault.Capacityf(
				me, "more than %d markers are leaving for rank %d.",
				e.bufCap, owner,
			)
		}
		ob.idx = append(ob.idx, i)
		e.leave[i] = true
		departing++
	}
	return departing, nil
}

// adjust wraps periodic coordinates and clamps the others to the global
// extent of each axis.
func (e *Engine) adjust(p *geom.Vec) {
	m := e.loc.Mesh()
	for k := 0; k < 3; k++ {
		g := m.Global[k]
		if m.Periodic[k] {
			if p[k] < g[0] || p[k] >= g[1] {
				p[k] = geom.Wrap(p[k], g[0], g[1])
			}
		} else {
			p[k] = geom.Clamp(p[k], g[0], g[1])
		}
	}
}

func (e *Engine) exchangeCounts(ctx context.Context) ([]int, error) {
	for _, r := range e.nb.Ranks {
		n := int64(len(e.out[r].idx))
		if err := comm.SendInt(ctx, e.t, r, comm.TagCount, n); err != nil {
			return nil, err
		}
	}

	counts := make([]int, e.nb.Len())
	for j, r := range e.nb.Ranks {
		n, err := comm.RecvInt(ctx, e.t, r, comm.TagCount)
		if err != nil {
			return nil, err
		}
		if n > int64(e.bufCap) || n < 0 {
			return nil, fault.Capacityf(
				e.t.Rank(), "rank %d is sending %d markers, the transfer "+
					"buffer holds %d.", r, n, e.bufCap,
			)
		}
		counts[j] = int(n)
	}
	return counts, nil
}

func (e *Engine) exchangePayloads(ctx context.Context, counts []int) error {
	for _, r := range e.nb.Ranks {
		ob := e.out[r]
		if len(ob.idx) == 0 {
			continue
		}
		if err := e.t.Send(ctx, r, comm.TagPayload, ob.buf); err != nil {
			return err
		}
	}

	e.recv = e.recv[:0]
	for j, r := range e.nb.Ranks {
		if counts[j] == 0 {
			continue
		}
		msg, err := e.t.Recv(ctx, r, comm.TagPayload)
		if err != nil {
			return err
		}
		if len(msg) != counts[j]*e.layout.RecordSize() {
			return fault.Topologyf(
				e.t.Rank(), "rank %d announced %d markers but sent %d bytes.",
				r, counts[j], len(msg),
			)
		}
		for len(msg) > 0 {
			var mk marker.Marker
			if msg, err = e.layout.Decode(msg, &mk); err != nil {
				return fmt.Errorf("decoding markers from rank %d: %w", r, err)
			}
			e.recv = append(e.recv, mk)
		}
	}
	return nil
}
