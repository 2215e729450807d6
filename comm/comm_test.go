package comm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRingOrdering(t *testing.T) {
	c := NewCluster(4)
	got := make([][]int64, c.Size())

	err := c.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		next := (tr.Rank() + 1) % tr.Size()
		prev := (tr.Rank() + tr.Size() - 1) % tr.Size()
		for i := int64(0); i < 5; i++ {
			if err := SendInt(ctx, tr, next, TagCount, 10*int64(tr.Rank())+i); err != nil {
				return err
			}
		}
		for i := 0; i < 5; i++ {
			x, err := RecvInt(ctx, tr, prev, TagCount)
			if err != nil {
				return err
			}
			got[tr.Rank()] = append(got[tr.Rank()], x)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{30, 31, 32, 33, 34}, got[0])
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, got[1])
}

func TestSendCopies(t *testing.T) {
	c := NewCluster(2)
	var got []byte

	err := c.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		if tr.Rank() == 0 {
			buf := []byte{1, 2, 3}
			if err := tr.Send(ctx, 1, TagPayload, buf); err != nil {
				return err
			}
			buf[0] = 9
			return nil
		}
		var err error
		got, err = tr.Recv(ctx, 0, TagPayload)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestAllreduce(t *testing.T) {
	table := []struct {
		op   Op
		want int64
	}{
		{Sum, 0 + 1 + 2 + 3 + 4},
		{Max, 4},
		{Min, 0},
	}

	for i, test := range table {
		c := NewCluster(5)
		out := make([]int64, c.Size())
		err := c.Run(context.Background(), func(ctx context.Context, tr Transport) error {
			x, err := Allreduce(ctx, tr, int64(tr.Rank()), test.op)
			out[tr.Rank()] = x
			return err
		})
		require.NoError(t, err)
		for r, x := range out {
			if x != test.want {
				t.Errorf("%d) Expected %d on rank %d, got %d.", i, test.want, r, x)
			}
		}
	}
}

func TestFailureCancelsRanks(t *testing.T) {
	c := NewCluster(3)
	boom := errors.New("boom")

	err := c.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		if tr.Rank() == 2 {
			return boom
		}
		// Never satisfied: only rank 2 could send this.
		_, err := tr.Recv(ctx, 2, TagCount)
		return err
	})
	assert.ErrorIs(t, err, boom)
}
