/*package comm provides tagged point-to-point messages between the ranks of a
marker run and the collective reductions built on top of them.
*/
package comm

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Tag separates independent message streams between the same pair of ranks.
type Tag int

const (
	TagCount Tag = iota
	TagPayload
	TagHalo
	TagReduce
	TagBroadcast
)

// Transport sends and receives messages between ranks. Messages sent from
// one rank to another with the same tag arrive in order. Send never blocks
// waiting for the receiver and Recv blocks until a message arrives or ctx is
// cancelled.
//
// Send must not retain msg after it returns: callers reuse their send buffers
// immediately, so an implementation which delivers later must copy msg first.
// The slice returned by Recv belongs to the caller.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dst int, tag Tag, msg []byte) error
	Recv(ctx context.Context, src int, tag Tag) ([]byte, error)
}

// SendInt sends a single integer.
func SendInt(ctx context.Context, t Transport, dst int, tag Tag, x int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(x))
	return t.Send(ctx, dst, tag, buf)
}

// RecvInt receives a single integer sent by SendInt.
func RecvInt(ctx context.Context, t Transport, src int, tag Tag) (int64, error) {
	buf, err := t.Recv(ctx, src, tag)
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf(
			"expected an 8 byte integer from rank %d, got %d bytes", src, len(buf),
		)
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// Op is a reduction operator.
type Op int

const (
	Sum Op = iota
	Max
	Min
)

func (op Op) apply(x, y int64) int64 {
	switch op {
	case Max:
		if y > x {
			return y
		}
		return x
	case Min:
		if y < x {
			return y
		}
		return x
	}
	return x + y
}

// Allreduce combines x across every rank and returns the result on all of
// them. Every rank must call Allreduce with the same op.
func Allreduce(ctx context.Context, t Transport, x int64, op Op) (int64, error) {
	if t.Rank() != 0 {
		if err := SendInt(ctx, t, 0, TagReduce, x); err != nil {
			return 0, err
		}
		return RecvInt(ctx, t, 0, TagBroadcast)
	}

	acc := x
	for src := 1; src < t.Size(); src++ {
		y, err := RecvInt(ctx, t, src, TagReduce)
		if err != nil {
			return 0, err
		}
		acc = op.apply(acc, y)
	}
	for dst := 1; dst < t.Size(); dst++ {
		if err := SendInt(ctx, t, dst, TagBroadcast, acc); err != nil {
			return 0, err
		}
	}
	return acc, nil
}
