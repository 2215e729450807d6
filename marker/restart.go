package marker

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
)

const (
	// DefaultEndiannessFlag is used when writing restart files. Files of either
	// endianness can be read.
	DefaultEndiannessFlag int32 = 0
)

/*
The binary format used for restart files is as follows:
    |-- 1 --||-- 2 --||-- 3 --||-- 4 --||-- 5 --||-- 6 --||-- 7 --|

    1 - (int32) Flag indicating the endianness of the file. 0 indicates a
        little endian byte ordering and -1 indicates a big endian byte order.
    2 - (int32) Size of a RestartHeader struct.
    3 - (RestartHeader) Meta-information about the rank's markers.
    4 - ([Count][3]float64) Marker positions.
    5 - ([Count * (2 + Flavors)]int64) Element, composition and flavors of
        each marker.
    6 - ([Count * StrainCols]float64) Strain history of each marker.
    7 - ([Elements]float64) Elemental composition.
*/
type RestartHeader struct {
	Rank, Size int64
	Count      int64
	Elements   int64
	Flavors    int64
	StrainCols int64

	Step int64
	Time float64
}

// endianness converts an endianness flag to a byte order.
func endianness(flag int32) (binary.ByteOrder, error) {
	switch flag {
	case 0:
		return binary.LittleEndian, nil
	case -1:
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unrecognized endianness flag %d", flag)
}

// WriteRestart writes the live markers of set and the elemental composition
// ce to file. hd.Count, hd.Elements, hd.Flavors and hd.StrainCols are filled
// in from the other arguments.
func WriteRestart(
	file string, hd *RestartHeader, l Layout, set *Set, ce []float64,
) (err error) {
	hd.Count = int64(set.Len())
	hd.Elements = int64(len(ce))
	hd.Flavors = int64(l.Flavors)
	hd.StrainCols = int64(l.Strain)

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	w := bufio.NewWriter(f)
	order, _ := endianness(DefaultEndiannessFlag)
	ms := set.Markers()

	xs := make([]geom.Vec, len(ms))
	ints := make([]int64, 0, len(ms)*(2+l.Flavors))
	strain := make([]float64, 0, len(ms)*l.Strain)
	for i := range ms {
		xs[i] = ms[i].Pos
		ints = append(ints, int64(ms[i].Elem), int64(ms[i].Comp))
		for _, fl := range ms[i].Flavors[:l.Flavors] {
			ints = append(ints, int64(fl))
		}
		strain = append(strain, ms[i].Strain[:l.Strain]...)
	}

	blocks := []interface{}{
		DefaultEndiannessFlag, int32(binary.Size(hd)), hd,
		xs, ints, strain, ce,
	}
	for _, b := range blocks {
		if err := binary.Write(w, order, b); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readRestartHeader(r io.Reader, hd *RestartHeader) (binary.ByteOrder, error) {
	var flag, size int32
	// The flag is symmetric, so the order of this read doesn't matter.
	if err := binary.Read(r, binary.LittleEndian, &flag); err != nil {
		return nil, err
	}
	order, err := endianness(flag)
	if err != nil {
		return nil, err
	}

	if err := binary.Read(r, order, &size); err != nil {
		return nil, err
	}
	if int(size) != binary.Size(hd) {
		return nil, fmt.Errorf(
			"expected RestartHeader size of %d, found %d", binary.Size(hd), size,
		)
	}
	if err := binary.Read(r, order, hd); err != nil {
		return nil, err
	}
	return order, nil
}

// ReadRestartHeader reads the header of a restart file.
func ReadRestartHeader(file string, hd *RestartHeader) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = readRestartHeader(bufio.NewReader(f), hd)
	return err
}

// ReadRestart replaces the contents of set with the markers in file and
// writes the elemental composition into ce. The file must have been written
// with the same Layout and element count. Markers start with Pred equal to
// Pos and zero velocity.
func ReadRestart(
	file string, l Layout, set *Set, ce []float64,
) (*RestartHeader, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	hd := &RestartHeader{}
	order, err := readRestartHeader(r, hd)
	if err != nil {
		return nil, err
	}

	switch {
	case hd.Count < 0:
		return nil, fault.Configf(
			"restart file %s has a negative marker count, %d.", file, hd.Count,
		)
	case hd.Flavors != int64(l.Flavors) || hd.StrainCols != int64(l.Strain):
		return nil, fault.Configf(
			"restart file %s has %d flavors and %d strain values, but the "+
				"run tracks %d and %d.", file, hd.Flavors, hd.StrainCols,
			l.Flavors, l.Strain,
		)
	case hd.Elements != int64(len(ce)):
		return nil, fault.Configf(
			"restart file %s has %d elements, but the mesh has %d.",
			file, hd.Elements, len(ce),
		)
	case hd.Count > int64(set.Cap()):
		return nil, fault.Capacityf(
			int(hd.Rank), "restart file %s holds %d markers, capacity is %d.",
			file, hd.Count, set.Cap(),
		)
	}

	n := int(hd.Count)
	xs := make([]geom.Vec, n)
	ints := make([]int64, n*(2+l.Flavors))
	strain := make([]float64, n*l.Strain)
	for _, b := range []interface{}{xs, ints, strain, ce} {
		if err := binary.Read(r, order, b); err != nil {
			return nil, fmt.Errorf("reading restart file %s: %w", file, err)
		}
	}

	set.Reset()
	width := 2 + l.Flavors
	for i := 0; i < n; i++ {
		mk := Marker{Pos: xs[i], Pred: xs[i]}
		row := ints[i*width : (i+1)*width]
		mk.Elem, mk.Comp = int(row[0]), int(row[1])
		for k := 0; k < l.Flavors; k++ {
			mk.Flavors[k] = int(row[2+k])
		}
		copy(mk.Strain[:], strain[i*l.Strain:(i+1)*l.Strain])
		if err := set.Append(mk); err != nil {
			return nil, err
		}
	}
	return hd, nil
}
