package trial

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trialkit/trialkit/trial/internal/check"
)

// DeviceType is the kind of compute device.
type DeviceType string

const (
	DeviceCPU DeviceType = "cpu"
	DeviceGPU DeviceType = "cuda"
)

// Device identifies where a model's parameters live.
type Device struct {
	Type  DeviceType
	Index int // GPU ordinal; always 0 for CPU
}

// CPU returns the host device.
func CPU() Device { return Device{Type: DeviceCPU} }

// GPU returns the GPU with the given ordinal.
func GPU(index int) Device { return Device{Type: DeviceGPU, Index: index} }

// IsGPU reports whether the device is a GPU.
func (d Device) IsGPU() bool { return d.Type == DeviceGPU }

func (d Device) String() string {
	if d.Type == DeviceGPU {
		return fmt.Sprintf("%s:%d", d.Type, d.Index)
	}
	return string(d.Type)
}

// resolveDevice selects the execution device:
//   - distributed: one worker per GPU, bound to the GPU matching its local rank
//   - GPUs visible: GPU 0
//   - otherwise CPU
func resolveDevice(env Env, cfg DistributedConfig, dist Distributed) (Device, error) {
	nGPUs := len(env.ContainerGPUs)
	switch {
	case cfg.Use:
		if err := check.GreaterThan(nGPUs, 0, "distributed training requires at least one GPU"); err != nil {
			return Device{}, configurationError(err)
		}
		if dist == nil {
			return Device{}, configurationErrorf("distributed training enabled without a distributed backend")
		}
		device := GPU(dist.LocalRank())
		if binder, ok := dist.(DeviceBinder); ok {
			if err := binder.SetDevice(device); err != nil {
				return Device{}, configurationError(err)
			}
		}
		return device, nil
	case nGPUs > 0:
		return GPU(0), nil
	default:
		logrus.Debugf("No GPUs visible; running on %s", DeviceCPU)
		return CPU(), nil
	}
}
