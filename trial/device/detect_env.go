//go:build !cuda

package device

import "os"

// detectGPUs trusts CUDA_VISIBLE_DEVICES as set by the scheduler. Without it
// no GPU is assumed.
func detectGPUs() ([]GPU, error) {
	ids := ParseVisibleDevices(os.Getenv(VisibleDevicesEnv))
	gpus := make([]GPU, len(ids))
	for i, id := range ids {
		gpus[i] = GPU{Index: i, ID: id}
	}
	return gpus, nil
}
