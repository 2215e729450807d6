package mesh

import (
	"fmt"

	"github.com/phil-mansfield/table"
)

// UniformAxis returns the node coordinates of an axis split into elems
// equally sized elements.
func UniformAxis(min, max float64, elems int) []float64 {
	xs := make([]float64, elems+1)
	dx := (max - min) / float64(elems)
	for i := range xs {
		xs[i] = min + float64(i)*dx
	}
	xs[elems] = max
	return xs
}

// ReadAxis reads stretched node coordinates from column col of a whitespace
// separated text table.
func ReadAxis(file string, col int) ([]float64, error) {
	cols, err := table.ReadTable(file, []int{col}, nil)
	if err != nil {
		return nil, err
	}
	if len(cols[0]) < 2 {
		return nil, fmt.Errorf(
			"axis table %s has %d rows, need at least 2", file, len(cols[0]),
		)
	}
	return cols[0], nil
}
