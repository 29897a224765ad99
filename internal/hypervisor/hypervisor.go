// Package hypervisor models a host: its capacity, overcommit configuration,
// hosted-server list, snapshot stack, and the scoring function the planner
// minimizes in magnitude.
package hypervisor

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/yourusername/hyperbalance/internal/config"
	"github.com/yourusername/hyperbalance/internal/server"
)

// StatusEnabled is the status tag that makes a hypervisor eligible to
// receive or donate servers.
const StatusEnabled = "enabled"

// ErrConfigMismatch is returned by VerifyAvailableResources when derived
// availability disagrees with the cloud-reported used counters.
type ErrConfigMismatch struct {
	Hypervisor string
	Dimension  string
	Derived    float64
	Reported   float64
}

func (e *ErrConfigMismatch) Error() string {
	return fmt.Sprintf("hypervisor %s: config mismatch on %s: derived=%v reported=%v",
		e.Hypervisor, e.Dimension, e.Derived, e.Reported)
}

// Hypervisor is a mutable host. Its server list is owned exclusively by
// this type and mutated only through AddServer/RemoveServer/PopAll/
// UseSnapshot.
type Hypervisor struct {
	ID       string
	Name     string
	Status   string
	VCPUsRaw int64
	MemMBRaw int64

	// VCPUsUsed/MemMBUsed are the cloud-reported counters at load time,
	// used only by VerifyAvailableResources.
	VCPUsUsed int64
	MemMBUsed int64

	Config config.Config

	servers   []server.Server
	snapshots [][]server.Server

	gaveRAMWarning   bool
	gaveVCPUsWarning bool
}

// New constructs a Hypervisor with an empty server list.
func New(id, name, status string, vcpusRaw, memMBRaw, vcpusUsed, memMBUsed int64, cfg config.Config) *Hypervisor {
	return &Hypervisor{
		ID: id, Name: name, Status: status,
		VCPUsRaw: vcpusRaw, MemMBRaw: memMBRaw,
		VCPUsUsed: vcpusUsed, MemMBUsed: memMBUsed,
		Config: cfg,
	}
}

// HostID satisfies migration.Host.
func (h *Hypervisor) HostID() string { return h.ID }

// Hostname satisfies migration.Host.
func (h *Hypervisor) Hostname() string { return h.Name }

// Enabled reports whether the hypervisor's status permits scheduling.
func (h *Hypervisor) Enabled() bool { return h.Status == StatusEnabled }

// VCPUsCapacity is raw vCPUs scaled by the configured overcommit factor.
func (h *Hypervisor) VCPUsCapacity() float64 {
	return float64(h.VCPUsRaw) * h.Config.CPUOvercommit
}

// MemoryCapacity is raw memory scaled by the configured overcommit factor.
func (h *Hypervisor) MemoryCapacity() float64 {
	return float64(h.MemMBRaw) * h.Config.RAMOvercommit
}

func (h *Hypervisor) usedVCPUs() int64 {
	var total int64
	for _, s := range h.servers {
		total += s.VCPUs()
	}
	return total
}

func (h *Hypervisor) usedRAM() int64 {
	var total int64
	for _, s := range h.servers {
		total += s.RAM()
	}
	return total
}

// AvailableVCPUs is capacity minus the vCPUs of every currently hosted
// server, computed from the live server list (not the cloud counters). It
// may go negative; a negative value is logged once and otherwise returned
// unchanged — an overcommitted host is effectively frozen until a buffer
// migration relieves it.
func (h *Hypervisor) AvailableVCPUs() float64 {
	avail := h.VCPUsCapacity() - float64(h.usedVCPUs())
	if avail < 0 && !h.gaveVCPUsWarning {
		slog.Warn("hypervisor vcpu availability went negative", "hypervisor", h.Name, "available_vcpus", avail)
		h.gaveVCPUsWarning = true
	}
	return avail
}

// AvailableRAM is capacity minus hosted RAM minus the configured memory
// overhead. Same negative-value handling as AvailableVCPUs.
func (h *Hypervisor) AvailableRAM() float64 {
	avail := h.MemoryCapacity() - float64(h.usedRAM()) - h.Config.MemoryOverheadMB
	if avail < 0 && !h.gaveRAMWarning {
		slog.Warn("hypervisor ram availability went negative", "hypervisor", h.Name, "available_ram", avail)
		h.gaveRAMWarning = true
	}
	return avail
}

// Ratio is floor(available_ram / available_vcpus) when available_vcpus is
// positive, or available_ram unmodified otherwise (zero or negative). See
// DESIGN.md for why the degenerate branch is wider than the zero-only check
// in the original implementation.
func (h *Hypervisor) Ratio() float64 {
	avcpus := h.AvailableVCPUs()
	aram := h.AvailableRAM()
	if avcpus > 0 {
		return math.Floor(aram / avcpus)
	}
	return aram
}

// Divergence returns (left, right): the summed magnitude of servers whose
// divergence from referenceRatio is negative (left) and non-negative
// (right).
func (h *Hypervisor) Divergence(referenceRatio float64) (left, right float64) {
	for _, s := range h.servers {
		d := s.DivergenceFrom(referenceRatio)
		if d < 0 {
			left += -d
		} else {
			right += d
		}
	}
	return left, right
}

// Score is the sigmoid-weighted angular deviation of this hypervisor's
// free-capacity ratio from referenceRatio. A score near zero means free
// capacity matches the workload's typical demand shape.
func (h *Hypervisor) Score(referenceRatio float64) float64 {
	weightRAM := sigmoid(h.AvailableRAM() / float64(h.MemMBRaw))
	weightVCPUs := sigmoid(h.AvailableVCPUs() / float64(h.VCPUsRaw))
	angle := math.Atan(referenceRatio) - math.Atan(h.Ratio())
	return angle * (weightRAM + weightVCPUs)
}

func sigmoid(x float64) float64 {
	return x / (1 + math.Abs(x))
}

// AddServer appends s to the live list and returns true, unless force is
// false and s does not fit in available capacity, in which case it returns
// false without mutating anything.
func (h *Hypervisor) AddServer(s server.Server, force bool) bool {
	if !force {
		if float64(s.RAM()) > h.AvailableRAM() || float64(s.VCPUs()) > h.AvailableVCPUs() {
			return false
		}
	}
	h.servers = append(h.servers, s)
	return true
}

// RemoveServer removes s by identifier equality. It returns true iff
// exactly one element was removed; on any other outcome the list is left
// untouched and the failure is logged.
func (h *Hypervisor) RemoveServer(s server.Server) bool {
	idx := -1
	count := 0
	for i, existing := range h.servers {
		if existing.Equal(s) {
			count++
			idx = i
		}
	}
	if count != 1 {
		slog.Error("remove_server did not match exactly one server", "hypervisor", h.Name, "server", s.ID, "matches", count)
		return false
	}
	h.servers = append(h.servers[:idx], h.servers[idx+1:]...)
	return true
}

// PopAll detaches and returns every currently hosted server.
func (h *Hypervisor) PopAll() []server.Server {
	popped := h.servers
	h.servers = nil
	return popped
}

// Servers returns the live server list. Callers must not mutate the
// returned slice; use AddServer/RemoveServer/PopAll instead.
func (h *Hypervisor) Servers() []server.Server {
	return h.servers
}

// SetServers replaces the live list wholesale. Used by the mixer to
// restore an original list on rollback.
func (h *Hypervisor) SetServers(servers []server.Server) {
	h.servers = servers
}

// Snapshot pushes a copy of the current server list onto the snapshot
// stack. If validate is true it also calls VerifyAvailableResources.
func (h *Hypervisor) Snapshot(validate bool) error {
	cp := make([]server.Server, len(h.servers))
	copy(cp, h.servers)
	h.snapshots = append(h.snapshots, cp)
	if validate {
		return h.VerifyAvailableResources()
	}
	return nil
}

// UseSnapshot replaces the live server list with a copy of the stack entry
// at index (negative indices count from the end; -1 is the most recent,
// 0 is the originally loaded state). If validate is true it calls
// VerifyAvailableResources afterward.
func (h *Hypervisor) UseSnapshot(index int, validate bool) error {
	i := index
	if i < 0 {
		i = len(h.snapshots) + i
	}
	if i < 0 || i >= len(h.snapshots) {
		return fmt.Errorf("hypervisor %s: snapshot index %d out of range (have %d)", h.Name, index, len(h.snapshots))
	}
	cp := make([]server.Server, len(h.snapshots[i]))
	copy(cp, h.snapshots[i])
	h.servers = cp
	if validate {
		return h.VerifyAvailableResources()
	}
	return nil
}

// VerifyAvailableResources asserts that availability derived from the live
// server list agrees with the cloud-reported used counters at load time.
// A mismatch is a configuration error.
func (h *Hypervisor) VerifyAvailableResources() error {
	expectedVCPUs := h.VCPUsCapacity() - float64(h.VCPUsUsed)
	if expectedVCPUs != h.AvailableVCPUs() {
		return &ErrConfigMismatch{Hypervisor: h.Name, Dimension: "vcpus", Derived: h.AvailableVCPUs(), Reported: expectedVCPUs}
	}
	expectedRAM := h.MemoryCapacity() - float64(h.MemMBUsed) - h.Config.MemoryOverheadMB
	if expectedRAM != h.AvailableRAM() {
		return &ErrConfigMismatch{Hypervisor: h.Name, Dimension: "ram", Derived: h.AvailableRAM(), Reported: expectedRAM}
	}
	return nil
}

// ToDict returns the serializable projection used for reporting.
func (h *Hypervisor) ToDict(referenceRatio float64) map[string]any {
	vmNames := make([]string, len(h.servers))
	for i, s := range h.servers {
		vmNames[i] = s.Name
	}
	left, right := h.Divergence(referenceRatio)
	return map[string]any{
		"name":          h.Name,
		"score":         h.Score(referenceRatio),
		"divergence":    [2]float64{left, right},
		"enabled":       h.Enabled(),
		"vcpus":         h.VCPUsRaw,
		"vcpus_used":    h.VCPUsUsed,
		"memory_mb":     h.MemMBRaw,
		"memory_mb_used": h.MemMBUsed,
		"vms":           vmNames,
	}
}
