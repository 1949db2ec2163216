// Package device discovers the compute devices visible to a worker: the GPUs
// it may use and a description of the host CPU.
package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
)

// VisibleDevicesEnv restricts the GPUs a worker may use.
const VisibleDevicesEnv = "CUDA_VISIBLE_DEVICES"

// GPU describes one visible accelerator. Name, memory and compute capability
// are only known when built with CUDA support.
type GPU struct {
	Index             int
	ID                string
	Name              string
	MemoryBytes       int64
	ComputeCapability string
}

// VisibleGPUs returns the GPUs this process may use, in ordinal order.
func VisibleGPUs() ([]GPU, error) {
	return detectGPUs()
}

// driverDevice is the view of one device the CUDA driver provides.
type driverDevice interface {
	Name() (string, error)
	TotalMem() (int64, error)
	ComputeCapability() (major, minor int, err error)
}

// describeGPU reads the properties of ordinal d from the driver.
func describeGPU(d int, dev driverDevice) (GPU, error) {
	name, err := dev.Name()
	if err != nil {
		return GPU{}, errors.Wrapf(err, "reading name of CUDA device %d", d)
	}
	mem, err := dev.TotalMem()
	if err != nil {
		return GPU{}, errors.Wrapf(err, "reading memory of CUDA device %d", d)
	}
	maj, min, err := dev.ComputeCapability()
	if err != nil {
		return GPU{}, errors.Wrapf(err, "reading compute capability of CUDA device %d", d)
	}
	return GPU{
		Index:             d,
		ID:                strconv.Itoa(d),
		Name:              name,
		MemoryBytes:       mem,
		ComputeCapability: fmt.Sprintf("%d.%d", maj, min),
	}, nil
}

// IDs returns the ids of gpus, the form trial.Env.ContainerGPUs takes.
func IDs(gpus []GPU) []string {
	ids := make([]string, len(gpus))
	for i, g := range gpus {
		ids[i] = g.ID
	}
	return ids
}

// ParseVisibleDevices parses a CUDA_VISIBLE_DEVICES value. Like the CUDA
// driver, it stops at the first invalid entry ("-1" hides every device that
// follows).
func ParseVisibleDevices(value string) []string {
	var ids []string
	for _, field := range strings.Split(value, ",") {
		id := strings.TrimSpace(field)
		if id == "" || strings.HasPrefix(id, "-") || strings.EqualFold(id, "NoDevFiles") {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// HostInfo describes the host CPU.
type HostInfo struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Features      []string // vector extensions relevant to float math
}

// Host returns the description of the host CPU.
func Host() HostInfo {
	info := HostInfo{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"avx", cpuid.AVX},
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"f16c", cpuid.F16C},
		{"asimd", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

func (h HostInfo) String() string {
	brand := h.Brand
	if brand == "" {
		brand = "unknown CPU"
	}
	features := "none"
	if len(h.Features) > 0 {
		features = strings.Join(h.Features, " ")
	}
	return fmt.Sprintf("%s (%d physical / %d logical cores; features: %s)",
		brand, h.PhysicalCores, h.LogicalCores, features)
}
