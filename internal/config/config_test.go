package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/hyperbalance/internal/config"
)

func TestDefaultMatchesOriginalConstructorDefaults(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 1.0, cfg.RAMOvercommit)
	assert.Equal(t, 4.0, cfg.CPUOvercommit)
	assert.Equal(t, 32768.0, cfg.MemoryOverheadMB)
}

func TestConfigDecodesFromYAML(t *testing.T) {
	content := `
ram_overcommit: 1.5
cpu_overcommit: 8
hypervisor_memory_overhead: 16384
`
	var cfg config.Config
	err := yaml.Unmarshal([]byte(content), &cfg)
	assert.NoError(t, err)
	assert.Equal(t, 1.5, cfg.RAMOvercommit)
	assert.Equal(t, 8.0, cfg.CPUOvercommit)
	assert.Equal(t, 16384.0, cfg.MemoryOverheadMB)
}
