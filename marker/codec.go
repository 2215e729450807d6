package marker

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/phil-mansfield/gomarker/geom"
)

// A marker record has three blocks:
//
//     velocity block: Vel, VelPred, Strain[:Strain]  (float64)
//     position block: Pos, Pred                      (float64)
//     integer block:  Comp, Elem, Flavors[:Flavors]  (int64)
//
// All values are little endian.

// RecordSize returns the number of bytes in one encoded marker.
func (l Layout) RecordSize() int {
	return 8 * (6 + l.Strain + 6 + 2 + l.Flavors)
}

// Append encodes m onto the end of buf.
func (l Layout) Append(buf []byte, m *Marker) []byte {
	buf = appendVec(buf, m.Vel)
	buf = appendVec(buf, m.VelPred)
	for _, s := range m.Strain[:l.Strain] {
		buf = appendFloat(buf, s)
	}

	buf = appendVec(buf, m.Pos)
	buf = appendVec(buf, m.Pred)

	buf = appendInt(buf, m.Comp)
	buf = appendInt(buf, m.Elem)
	for _, f := range m.Flavors[:l.Flavors] {
		buf = appendInt(buf, f)
	}
	return buf
}

// Decode reads one marker from the start of buf into m and returns the rest
// of buf. Fields which are not part of the layout are reset.
func (l Layout) Decode(buf []byte, m *Marker) ([]byte, error) {
	if len(buf) < l.RecordSize() {
		return buf, fmt.Errorf(
			"marker record needs %d bytes, only %d remain",
			l.RecordSize(), len(buf),
		)
	}

	*m = Marker{}
	buf = readVec(buf, &m.Vel)
	buf = readVec(buf, &m.VelPred)
	for i := 0; i < l.Strain; i++ {
		m.Strain[i], buf = readFloat(buf)
	}

	buf = readVec(buf, &m.Pos)
	buf = readVec(buf, &m.Pred)

	m.Comp, buf = readInt(buf)
	m.Elem, buf = readInt(buf)
	for i := 0; i < l.Flavors; i++ {
		m.Flavors[i], buf = readInt(buf)
	}
	return buf, nil
}

func appendFloat(buf []byte, x float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
}

func appendVec(buf []byte, v geom.Vec) []byte {
	for _, x := range v {
		buf = appendFloat(buf, x)
	}
	return buf
}

func appendInt(buf []byte, x int) []byte {
	return binary.LittleEndian.AppendUint64(buf, uint64(int64(x)))
}

func readFloat(buf []byte) (float64, []byte) {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), buf[8:]
}

func readVec(buf []byte, v *geom.Vec) []byte {
	for i := range v {
		v[i], buf = readFloat(buf)
	}
	return buf
}

func readInt(buf []byte) (int, []byte) {
	return int(int64(binary.LittleEndian.Uint64(buf))), buf[8:]
}
