// Package config carries the per-hypervisor overcommit and memory-overhead
// defaults. It never reads a file itself; a caller-owned YAML loader (out
// of core) decodes into this struct using the yaml tags below.
package config

// Config holds the parameters used to derive a hypervisor's usable
// capacity from its raw reported vCPUs and memory.
type Config struct {
	RAMOvercommit    float64 `yaml:"ram_overcommit"`
	CPUOvercommit    float64 `yaml:"cpu_overcommit"`
	MemoryOverheadMB float64 `yaml:"hypervisor_memory_overhead"`
}

// Default returns the documented defaults, matching the cloud's own
// default overcommit ratios (4x vCPU, no RAM overcommit, 32GB held back
// per host for the hypervisor's own memory use).
func Default() Config {
	return Config{
		RAMOvercommit:    1.0,
		CPUOvercommit:    4.0,
		MemoryOverheadMB: 32768,
	}
}
