package marker

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/locate"
	"github.com/phil-mansfield/gomarker/mesh"
)

// Rule decides the initial composition of a marker.
type Rule int

const (
	// Depth makes markers at or below a vertical level dense.
	Depth Rule = iota
	// Nodes makes markers dense when the mean initial nodal composition of
	// their element is at least one half.
	Nodes
	// Checkerboard alternates dense and ambient squares in the x-z plane.
	Checkerboard
	// Sphere makes markers within a sphere take one class and markers
	// outside take the other.
	Sphere
)

// ParseRule converts a rule's configuration name into a Rule.
func ParseRule(name string) (Rule, error) {
	switch name {
	case "depth":
		return Depth, nil
	case "nodes":
		return Nodes, nil
	case "checkerboard":
		return Checkerboard, nil
	case "sphere":
		return Sphere, nil
	}
	return 0, fault.Configf("unrecognized initial composition '%s'.", name)
}

func (r Rule) String() string {
	switch r {
	case Depth:
		return "depth"
	case Nodes:
		return "nodes"
	case Checkerboard:
		return "checkerboard"
	case Sphere:
		return "sphere"
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// DefaultCheckerWidth is the side length of a checkerboard square.
const DefaultCheckerWidth = 0.2

// Seeder assigns initial state to newly created markers.
type Seeder struct {
	Layout Layout
	Rule   Rule

	// Depth is the vertical level used by the Depth rule and, for flavors,
	// when FlavorNodes is nil.
	Depth float64
	// Composition is the initial nodal composition used by the Nodes rule
	// and by dense-only seeding.
	Composition []float64
	// CheckerWidth defaults to DefaultCheckerWidth.
	CheckerWidth float64

	Center          geom.Vec
	Radius          float64
	Inside, Outside int

	// FlavorNodes[k][n] is the initial value of flavor k at node n. If nil,
	// every flavor is 1 at or below Depth and 0 above it.
	FlavorNodes [][]int
}

// Check returns a ConfigurationError if the Seeder cannot be used on m.
func (s *Seeder) Check(m *mesh.Mesh) error {
	switch s.Rule {
	case Checkerboard, Sphere:
		if m.System == mesh.Spherical {
			return fault.Configf(
				"initial composition '%s' is not supported in %s meshes.",
				s.Rule, m.System,
			)
		}
	case Nodes:
		if len(s.Composition) != m.Nodes() {
			return fault.Configf(
				"initial composition has %d values, mesh has %d nodes.",
				len(s.Composition), m.Nodes(),
			)
		}
	}
	if s.FlavorNodes != nil && len(s.FlavorNodes) < s.Layout.Flavors {
		return fault.Configf(
			"%d initial flavor fields given for %d flavors.",
			len(s.FlavorNodes), s.Layout.Flavors,
		)
	}
	return nil
}

// Uniform appends n markers placed uniformly at random throughout the local
// subdomain. Spherical subdomains are sampled uniformly in volume.
func (s *Seeder) Uniform(
	set *Set, loc *locate.Localizer, rng *rand.Rand, n int,
) error {
	m := loc.Mesh()
	if err := s.Check(m); err != nil {
		return err
	}
	lo, hi := m.Lo(), m.Hi()

	for i := 0; i < n; i++ {
		var p geom.Vec
		if m.System == mesh.Spherical {
			p = sphericalPoint(rng, lo, hi)
		} else {
			for k := range p {
				p[k] = lo[k] + rng.Float64()*(hi[k]-lo[k])
			}
		}

		mk, err := s.marker(loc, p)
		if err != nil {
			return err
		}
		mk.Comp = s.composition(m, mk)
		if err := set.Append(mk); err != nil {
			return err
		}
	}
	return nil
}

// DenseOnly appends perElem dense markers to every element whose mean initial
// nodal composition exceeds one half.
func (s *Seeder) DenseOnly(
	set *Set, loc *locate.Localizer, rng *rand.Rand, perElem int,
) error {
	m := loc.Mesh()
	if len(s.Composition) != m.Nodes() {
		return fault.Configf(
			"dense-only seeding needs a nodal composition of %d values, got %d.",
			m.Nodes(), len(s.Composition),
		)
	}

	for el := 0; el < m.Elements(); el++ {
		if s.nodeMean(m, el) <= 0.5 {
			continue
		}
		o, h := m.ElemOrigin(el), m.ElemSize(el)
		for i := 0; i < perElem; i++ {
			p := geom.Vec{
				o[0] + rng.Float64()*h[0],
				o[1] + rng.Float64()*h[1],
				o[2] + rng.Float64()*h[2],
			}
			mk, err := s.marker(loc, p)
			if err != nil {
				return err
			}
			mk.Comp = 1
			if err := set.Append(mk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) marker(loc *locate.Localizer, p geom.Vec) (Marker, error) {
	el, _, err := loc.Element(p)
	if err != nil {
		return Marker{}, err
	}
	mk := Marker{Pos: p, Pred: p, Elem: el}
	s.Layout.ResetStrain(&mk)
	s.flavors(loc.Mesh(), &mk)
	return mk, nil
}

func (s *Seeder) composition(m *mesh.Mesh, mk Marker) int {
	p := mk.Pos
	switch s.Rule {
	case Nodes:
		if s.nodeMean(m, mk.Elem) >= 0.5 {
			return 1
		}
		return 0
	case Checkerboard:
		w := s.CheckerWidth
		if w <= 0 {
			w = DefaultCheckerWidth
		}
		ix := int(math.Floor(p[0] / w))
		iz := int(math.Floor(p[2] / w))
		if (ix+iz)%2 == 0 {
			return 1
		}
		return 0
	case Sphere:
		if p.Sub(s.Center).Norm() <= s.Radius {
			return s.Inside
		}
		return s.Outside
	}

	if p[2] > s.Depth {
		return 0
	}
	return 1
}

func (s *Seeder) flavors(m *mesh.Mesh, mk *Marker) {
	if s.FlavorNodes == nil {
		f := 0
		if mk.Pos[2] <= s.Depth {
			f = 1
		}
		for k := 0; k < s.Layout.Flavors; k++ {
			mk.Flavors[k] = f
		}
		return
	}

	nodes := m.ElemNodes(mk.Elem)
	nearest, dmin := nodes[0], math.Inf(+1)
	for _, n := range nodes {
		if d := m.NodePos(n).Sub(mk.Pos).Norm(); d < dmin {
			nearest, dmin = n, d
		}
	}
	for k := 0; k < s.Layout.Flavors; k++ {
		mk.Flavors[k] = s.FlavorNodes[k][nearest]
	}
}

func (s *Seeder) nodeMean(m *mesh.Mesh, el int) float64 {
	sum := 0.0
	for _, n := range m.ElemNodes(el) {
		sum += s.Composition[n]
	}
	return sum / 8
}

func sphericalPoint(rng *rand.Rand, lo, hi geom.Vec) geom.Vec {
	ct0, ct1 := math.Cos(lo[0]), math.Cos(hi[0])
	r0, r1 := lo[2]*lo[2]*lo[2], hi[2]*hi[2]*hi[2]
	p := geom.Vec{
		math.Acos(ct0 - rng.Float64()*(ct0-ct1)),
		lo[1] + rng.Float64()*(hi[1]-lo[1]),
		math.Cbrt(r0 + rng.Float64()*(r1-r0)),
	}
	for k := range p {
		p[k] = geom.Clamp(p[k], lo[k], hi[k])
	}
	return p
}
