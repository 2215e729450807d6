package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Cluster runs a fixed number of ranks as goroutines inside one process.
// Each rank talks to the others through an in-memory Transport.
type Cluster struct {
	size  int
	boxes []*mailbox
}

// NewCluster creates a Cluster with the given number of ranks.
func NewCluster(size int) *Cluster {
	c := &Cluster{size: size, boxes: make([]*mailbox, size)}
	for i := range c.boxes {
		c.boxes[i] = &mailbox{queues: map[route]*queue{}}
	}
	return c
}

// Size returns the number of ranks.
func (c *Cluster) Size() int { return c.size }

// Run calls fn once per rank, each in its own goroutine, and waits for all of
// them. The first rank to return an error cancels the context shared by
// every rank, so ranks blocked in Recv return, and that first error is
// returned.
func (c *Cluster) Run(
	ctx context.Context, fn func(ctx context.Context, t Transport) error,
) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for rank := 0; rank < c.size; rank++ {
		t := &local{rank: rank, c: c}
		eg.Go(func() error { return fn(egCtx, t) })
	}
	return eg.Wait()
}

type route struct {
	src int
	tag Tag
}

type mailbox struct {
	mu     sync.Mutex
	queues map[route]*queue
}

func (mb *mailbox) queue(r route) *queue {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	q, ok := mb.queues[r]
	if !ok {
		q = &queue{ready: make(chan struct{}, 1)}
		mb.queues[r] = q
	}
	return q
}

// queue is an unbounded FIFO with a single consumer.
type queue struct {
	mu    sync.Mutex
	msgs  [][]byte
	ready chan struct{}
}

func (q *queue) push(msg []byte) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.msgs) > 0 {
			msg := q.msgs[0]
			q.msgs[0] = nil
			q.msgs = q.msgs[1:]
			q.mu.Unlock()
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type local struct {
	rank int
	c    *Cluster
}

func (t *local) Rank() int { return t.rank }
func (t *local) Size() int { return t.c.size }

func (t *local) checkRank(r int) error {
	if r < 0 || r >= t.c.size {
		return fmt.Errorf("rank %d is outside a cluster of %d ranks", r, t.c.size)
	}
	return nil
}

// Send copies msg, so the caller may reuse its buffer immediately.
func (t *local) Send(ctx context.Context, dst int, tag Tag, msg []byte) error {
	if err := t.checkRank(dst); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	t.c.boxes[dst].queue(route{t.rank, tag}).push(cp)
	return nil
}

func (t *local) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if err := t.checkRank(src); err != nil {
		return nil, err
	}
	return t.c.boxes[t.rank].queue(route{src, tag}).pop(ctx)
}
