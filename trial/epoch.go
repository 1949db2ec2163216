package trial

import "github.com/trialkit/trialkit/trial/internal/check"

// SetCurrentBatch is called by the training loop before each batch.
func (c *Context) SetCurrentBatch(idx int) error {
	if err := check.GreaterThanOrEqualTo(idx, 0, "batch index must be non-negative"); err != nil {
		return newError(KindInternal, err)
	}
	c.currentBatch = &idx
	return nil
}

// CurrentBatch returns the current batch index, and false before training starts.
func (c *Context) CurrentBatch() (int, bool) {
	if c.currentBatch == nil {
		return 0, false
	}
	return *c.currentBatch, true
}

// SetEpochLength sets the number of batches per epoch once the training data
// loader is known.
func (c *Context) SetEpochLength(batches int) error {
	if err := check.GreaterThan(batches, 0, "epoch length must be positive"); err != nil {
		return configurationError(err)
	}
	c.epochLen = &batches
	return nil
}

// IsEpochStart reports whether the current batch is the first of its epoch.
// Not accurate for variable size epochs.
func (c *Context) IsEpochStart() (bool, error) {
	batch, epochLen, err := c.epochState()
	if err != nil {
		return false, err
	}
	return batch%epochLen == 0, nil
}

// IsEpochEnd reports whether the current batch is the last of its epoch.
// Not accurate for variable size epochs.
func (c *Context) IsEpochEnd() (bool, error) {
	batch, epochLen, err := c.epochState()
	if err != nil {
		return false, err
	}
	return batch%epochLen == epochLen-1, nil
}

func (c *Context) epochState() (int, int, error) {
	if c.currentBatch == nil {
		return 0, 0, internalErrorf("training hasn't started")
	}
	if c.epochLen == nil {
		return 0, 0, internalErrorf("training data loader uninitialized")
	}
	return *c.currentBatch, *c.epochLen, nil
}
