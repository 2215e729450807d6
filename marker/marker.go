/*package marker contains the Lagrangian marker type, the fixed-capacity array
each process stores its markers in, and the routines which create, encode and
persist markers.
*/
package marker

import (
	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
)

const (
	// MaxFlavors is the largest number of flavor tags a marker can carry.
	MaxFlavors = 4
	// StrainCols is the number of strain values a marker carries when the
	// full deformation history is tracked: one scalar followed by a
	// row-major 3 x 3 deformation gradient.
	StrainCols = 10
)

// Marker is a single Lagrangian particle.
type Marker struct {
	// Pos is the current position and Pred is the position estimated by the
	// most recent predictor step.
	Pos, Pred geom.Vec
	// Vel is the velocity at Pos and VelPred is the velocity at Pred.
	Vel, VelPred geom.Vec
	// Elem is the local element containing the marker.
	Elem int
	// Comp is the composition class. 1 is dense material, 0 is ambient.
	Comp    int
	Flavors [MaxFlavors]int
	Strain  [StrainCols]float64
}

// Layout records which optional fields are active in a run.
type Layout struct {
	Flavors int
	// Strain is 0, 1 or StrainCols.
	Strain int
}

// NewLayout returns the Layout for the given options. Tracking the full
// deformation history requires tracking scalar strain.
func NewLayout(flavors int, strain, tensor bool) (Layout, error) {
	if flavors < 0 || flavors > MaxFlavors {
		return Layout{}, fault.Configf(
			"%d flavors requested, but markers carry at most %d.",
			flavors, MaxFlavors,
		)
	} else if tensor && !strain {
		return Layout{}, fault.Configf(
			"tensor strain tracking requires scalar strain tracking.",
		)
	}

	l := Layout{Flavors: flavors}
	if tensor {
		l.Strain = StrainCols
	} else if strain {
		l.Strain = 1
	}
	return l, nil
}

// Tensor returns true if markers carry a deformation gradient.
func (l Layout) Tensor() bool { return l.Strain == StrainCols }

// ResetStrain sets the strain history of m to the undeformed state.
func (l Layout) ResetStrain(m *Marker) {
	m.Strain = [StrainCols]float64{}
	if l.Tensor() {
		m.Strain[1], m.Strain[5], m.Strain[9] = 1, 1, 1
	}
}
