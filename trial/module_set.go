package trial

import "fmt"

// moduleSet is an umbrella container whose submodules are the wrapped models,
// registered as model_0, model_1, ... so their parameter names never collide.
type moduleSet struct {
	names   []string
	modules map[string]Model
}

func newModuleSet() *moduleSet {
	return &moduleSet{modules: make(map[string]Model)}
}

func modelName(id int) string { return fmt.Sprintf("model_%d", id) }

func (s *moduleSet) register(name string, m Model) {
	if _, ok := s.modules[name]; !ok {
		s.names = append(s.names, name)
	}
	s.modules[name] = m
}

// NamedParameters returns every submodule parameter prefixed with its
// submodule name, in registration order.
func (s *moduleSet) NamedParameters() []NamedParameter {
	var out []NamedParameter
	for _, name := range s.names {
		for _, np := range s.modules[name].NamedParameters() {
			out = append(out, NamedParameter{Name: name + "." + np.Name, Param: np.Param})
		}
	}
	return out
}

// DataParallel replicates a model across the GPUs of a single process.
// Parameters are exposed under the "module." prefix.
type DataParallel struct {
	Module  Model
	Devices []Device
}

// NewDataParallel wraps m for replication over nGPUs devices.
func NewDataParallel(m Model, nGPUs int) *DataParallel {
	devices := make([]Device, nGPUs)
	for i := range devices {
		devices[i] = GPU(i)
	}
	return &DataParallel{Module: m, Devices: devices}
}

func (d *DataParallel) NamedParameters() []NamedParameter {
	inner := d.Module.NamedParameters()
	out := make([]NamedParameter, len(inner))
	for i, np := range inner {
		out[i] = NamedParameter{Name: "module." + np.Name, Param: np.Param}
	}
	return out
}

// To places the primary replica; replicas are scattered from it per batch.
func (d *DataParallel) To(device Device) error {
	return d.Module.To(device)
}
