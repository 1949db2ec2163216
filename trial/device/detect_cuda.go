//go:build cuda

package device

import (
	"github.com/pkg/errors"
	"gorgonia.org/cu"
)

// detectGPUs asks the CUDA driver, which already applies CUDA_VISIBLE_DEVICES.
func detectGPUs() ([]GPU, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, errors.Wrap(err, "counting CUDA devices")
	}
	gpus := make([]GPU, 0, n)
	for d := 0; d < n; d++ {
		gpu, err := describeGPU(d, cudaDevice{cu.Device(d)})
		if err != nil {
			return nil, err
		}
		gpus = append(gpus, gpu)
	}
	return gpus, nil
}

type cudaDevice struct{ cu.Device }

func (d cudaDevice) ComputeCapability() (int, int, error) {
	maj, err := d.Attribute(cu.ComputeCapabilityMajor)
	if err != nil {
		return 0, 0, err
	}
	min, err := d.Attribute(cu.ComputeCapabilityMinor)
	if err != nil {
		return 0, 0, err
	}
	return maj, min, nil
}
