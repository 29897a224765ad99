package inventory_test

import (
	"context"
	"testing"

	"github.com/majewsky/gg/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hyperbalance/internal/config"
	"github.com/yourusername/hyperbalance/internal/inventory"
)

type fakeSource struct {
	hvs     []inventory.RawHypervisor
	servers []inventory.RawServer
	flavors []inventory.RawFlavor
}

func (f fakeSource) ListHypervisors(context.Context) ([]inventory.RawHypervisor, error) { return f.hvs, nil }
func (f fakeSource) ListServers(context.Context) ([]inventory.RawServer, error)         { return f.servers, nil }
func (f fakeSource) ListFlavors(context.Context) ([]inventory.RawFlavor, error)         { return f.flavors, nil }

func smallFlavor(id string, ramMB, vcpus int64) inventory.RawFlavor {
	return inventory.RawFlavor{ID: id, Name: id, RAMMB: ramMB, VCPUs: vcpus}
}

func TestLoadAttachesServersAndComputesCommonRatio(t *testing.T) {
	src := fakeSource{
		hvs: []inventory.RawHypervisor{
			{ID: "hv1", Hostname: "hv1", Status: "enabled", VCPUs: 32, MemoryMB: 131072, VCPUsUsed: 18, MemoryMBUsed: 18432},
		},
		flavors: []inventory.RawFlavor{
			smallFlavor("f-ram-heavy", 16384, 2),  // ratio 8192
			smallFlavor("f-cpu-heavy", 1024, 8),   // ratio 128
		},
		servers: []inventory.RawServer{
			{ID: "vm1", Name: "vm1", Status: "ACTIVE", FlavorID: "f-ram-heavy", Host: option.Some("hv1")},
			{ID: "vm2", Name: "vm2", Status: "ACTIVE", FlavorID: "f-cpu-heavy", Host: option.Some("hv1")},
			{ID: "vm3", Name: "vm3", Status: "ACTIVE", FlavorID: "f-cpu-heavy", Host: option.Some("hv1")},
		},
	}

	inv, err := inventory.Load(context.Background(), src, config.Config{RAMOvercommit: 1, CPUOvercommit: 4})
	require.NoError(t, err)

	assert.Len(t, inv.Servers(), 3)
	assert.Equal(t, float64(128), inv.CommonRatio(), "ratio 128 appears twice, should win the mode")
}

func TestLoadDropsServerWithUnknownHost(t *testing.T) {
	src := fakeSource{
		hvs: []inventory.RawHypervisor{
			{ID: "hv1", Hostname: "hv1", Status: "enabled", VCPUs: 32, MemoryMB: 131072},
		},
		flavors: []inventory.RawFlavor{smallFlavor("f1", 1024, 1)},
		servers: []inventory.RawServer{
			{ID: "vm1", Name: "vm1", Status: "ACTIVE", FlavorID: "f1", Host: option.Some("unknown-host")},
		},
	}

	inv, err := inventory.Load(context.Background(), src, config.Config{RAMOvercommit: 1, CPUOvercommit: 4})
	require.NoError(t, err)
	assert.Empty(t, inv.Servers())
}

func TestLoadFiltersShelvedOffloaded(t *testing.T) {
	src := fakeSource{
		hvs: []inventory.RawHypervisor{
			{ID: "hv1", Hostname: "hv1", Status: "enabled", VCPUs: 32, MemoryMB: 131072},
		},
		flavors: []inventory.RawFlavor{smallFlavor("f1", 1024, 1)},
		servers: []inventory.RawServer{
			{ID: "vm1", Name: "vm1", Status: "SHELVED_OFFLOADED", FlavorID: "f1", Host: option.Some("hv1")},
		},
	}

	inv, err := inventory.Load(context.Background(), src, config.Config{RAMOvercommit: 1, CPUOvercommit: 4})
	require.NoError(t, err)
	assert.Empty(t, inv.Servers())
}

func TestEnabledHypervisorsFilter(t *testing.T) {
	src := fakeSource{
		hvs: []inventory.RawHypervisor{
			{ID: "hv1", Hostname: "hv1", Status: "enabled", VCPUs: 32, MemoryMB: 131072},
			{ID: "hv2", Hostname: "hv2", Status: "disabled", VCPUs: 32, MemoryMB: 131072},
		},
	}
	inv, err := inventory.Load(context.Background(), src, config.Config{RAMOvercommit: 1, CPUOvercommit: 4})
	require.NoError(t, err)
	assert.Len(t, inv.EnabledHypervisors(), 1)
}

func TestConfigMismatchIsFatal(t *testing.T) {
	src := fakeSource{
		hvs: []inventory.RawHypervisor{
			{ID: "hv1", Hostname: "hv1", Status: "enabled", VCPUs: 32, MemoryMB: 131072, VCPUsUsed: 99, MemoryMBUsed: 99},
		},
	}
	_, err := inventory.Load(context.Background(), src, config.Config{RAMOvercommit: 1, CPUOvercommit: 4})
	assert.Error(t, err)
}
