// register.go wires the Scaler into trial.NewMixedPrecisionFunc. This init()
// runs when any package imports trial/amp, breaking the import cycle between
// trial/ (interface owner) and trial/amp/ (implementation). Test code in
// package trial uses amp_import_test.go for the blank import.
package amp

import "github.com/trialkit/trialkit/trial"

func init() {
	trial.NewMixedPrecisionFunc = func() trial.MixedPrecision { return New() }
}
