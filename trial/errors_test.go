package trial

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_KindMatching(t *testing.T) {
	err := configurationErrorf("aggregation frequency is %d", 0)

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NotErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrInvalidUsage)
	assert.Equal(t, "configuration error: aggregation frequency is 0", err.Error())

	var trialErr *Error
	assert.True(t, errors.As(errors.Wrap(err, "wrapping"), &trialErr))
	assert.Equal(t, KindConfiguration, trialErr.Kind)
}

func TestError_NilCause(t *testing.T) {
	assert.NoError(t, newError(KindInternal, nil))
	assert.Equal(t, "invalid usage", ErrInvalidUsage.Error())
	assert.Equal(t, "ErrorKind(9)", ErrorKind(9).String())
}
