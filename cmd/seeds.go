package cmd

import (
	"hash/fnv"
	"math/rand"
	"strconv"
)

// workerSeeds derives the random streams of one worker from the experiment
// seed. Model init and data streams are identical on every rank; the
// sampling stream is private to the rank so workers read different batches.
type workerSeeds struct {
	seed int64
	rank int
}

func newWorkerSeeds(seed int64, rank int) workerSeeds {
	return workerSeeds{seed: seed, rank: rank}
}

// modelInit seeds parameter initialization, so replicas agree even before
// the initial broadcast.
func (s workerSeeds) modelInit() *rand.Rand { return s.derive("model_init") }

// data seeds synthesis of the dataset every worker reads from.
func (s workerSeeds) data() *rand.Rand { return s.derive("data") }

// sampling seeds the choice of examples for this rank's batches.
func (s workerSeeds) sampling() *rand.Rand {
	return s.derive("sampling/rank=" + strconv.Itoa(s.rank))
}

func (s workerSeeds) derive(stream string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(stream))
	return rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))
}
