// Package hvd is an in-process data-parallel communicator. A Group connects
// a fixed number of workers, each running its own trial.Context on its own
// goroutine; gradients are averaged with a blocking allreduce and initial
// parameters are shared with a broadcast from a root worker.
//
// Every collective call blocks until all workers of the group made the same
// call, in the same order. A worker that returns an error from Group.Run
// aborts the group, releasing peers blocked in a collective.
package hvd
