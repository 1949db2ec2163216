package trial_test

// Blank import triggers trial/amp's init(), which registers NewMixedPrecisionFunc.
// This allows package trial's internal test files to configure mixed precision
// without directly importing trial/amp (which would create an import cycle).
import _ "github.com/trialkit/trialkit/trial/amp"
