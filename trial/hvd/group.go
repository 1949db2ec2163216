package hvd

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

type collectiveOp int

const (
	opAverage collectiveOp = iota
	opBroadcast
)

func (op collectiveOp) String() string {
	if op == opBroadcast {
		return "broadcast"
	}
	return "allreduce"
}

// ErrAborted is returned by collectives once any worker of the group failed.
var ErrAborted = errors.New("communication group aborted")

// Group connects size workers, localSize of them per host.
type Group struct {
	size      int
	localSize int

	mu         sync.Mutex
	cond       *sync.Cond
	generation uint64
	arrived    int
	op         collectiveOp
	root       int
	buf        []float64
	pendingErr error
	result     []float64
	resultErr  error
	aborted    error
}

// NewGroup creates a group of size workers with localSize workers per host.
func NewGroup(size, localSize int) (*Group, error) {
	if size < 1 {
		return nil, errors.Errorf("group size must be at least 1, got %d", size)
	}
	if localSize < 1 || localSize > size {
		return nil, errors.Errorf("local size must be in [1, %d], got %d", size, localSize)
	}
	g := &Group{size: size, localSize: localSize}
	g.cond = sync.NewCond(&g.mu)
	return g, nil
}

// Size returns the number of workers.
func (g *Group) Size() int { return g.size }

// Worker returns the communication handle of rank.
func (g *Group) Worker(rank int) *Worker {
	return &Worker{group: g, rank: rank}
}

// Run calls fn for every worker on its own goroutine and waits for all of
// them. The first error aborts the group and is returned.
func (g *Group) Run(fn func(w *Worker) error) error {
	var eg errgroup.Group
	for rank := 0; rank < g.size; rank++ {
		w := g.Worker(rank)
		eg.Go(func() error {
			if err := fn(w); err != nil {
				logrus.WithField("rank", w.rank).Errorf("Worker failed: %v", err)
				g.abort(errors.Wrapf(err, "worker %d", w.rank))
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

func (g *Group) abort(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted == nil {
		g.aborted = errors.Wrap(ErrAborted, err.Error())
	}
	g.cond.Broadcast()
}

// collective blocks until every worker contributed data for the same
// operation, then overwrites data with the combined result.
func (g *Group) collective(rank int, data []float64, op collectiveOp, root int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted != nil {
		return g.aborted
	}

	gen := g.generation
	if g.arrived == 0 {
		g.op, g.root = op, root
		g.buf = make([]float64, len(data))
		g.pendingErr = nil
	}
	switch {
	case op != g.op || root != g.root || len(data) != len(g.buf):
		g.pendingErr = errors.Errorf("rank %d called %s(len=%d, root=%d) while peers called %s(len=%d, root=%d)",
			rank, op, len(data), root, g.op, len(g.buf), g.root)
	case op == opAverage:
		floats.Add(g.buf, data)
	case op == opBroadcast && rank == root:
		copy(g.buf, data)
	}

	g.arrived++
	if g.arrived == g.size {
		if g.op == opAverage {
			floats.Scale(1/float64(g.size), g.buf)
		}
		g.result, g.resultErr = g.buf, g.pendingErr
		g.buf = nil
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
	} else {
		for g.generation == gen && g.aborted == nil {
			g.cond.Wait()
		}
		if g.generation == gen {
			return g.aborted
		}
	}

	if g.resultErr != nil {
		return g.resultErr
	}
	copy(data, g.result)
	return nil
}
