// Package inventory owns all hypervisors and servers, derives the
// workload's divergence queries, and orchestrates snapshots across the
// fleet.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/majewsky/gg/option"

	"github.com/yourusername/hyperbalance/internal/config"
	"github.com/yourusername/hyperbalance/internal/flavor"
	"github.com/yourusername/hyperbalance/internal/hypervisor"
	"github.com/yourusername/hyperbalance/internal/migration"
	"github.com/yourusername/hyperbalance/internal/server"
)

// RawHypervisor is the adapter-facing hypervisor record, before overcommit
// configuration is applied.
type RawHypervisor struct {
	ID            string
	Hostname      string
	Status        string
	VCPUs         int64
	MemoryMB      int64
	VCPUsUsed     int64
	MemoryMBUsed  int64
}

// RawServer is the adapter-facing server record.
type RawServer struct {
	ID       string
	Name     string
	Status   string
	FlavorID string
	Host     option.Option[string]
}

// RawFlavor is the adapter-facing flavor record.
type RawFlavor struct {
	ID    string
	Name  string
	RAMMB int64
	VCPUs int64
}

// Source is the inbound adapter contract the core consumes. ListServers is
// expected to paginate internally; Inventory.Load calls it once.
type Source interface {
	ListHypervisors(ctx context.Context) ([]RawHypervisor, error)
	ListServers(ctx context.Context) ([]RawServer, error)
	ListFlavors(ctx context.Context) ([]RawFlavor, error)
}

// ErrAdapter wraps any I/O failure from a Source during Load.
type ErrAdapter struct {
	Op  string
	Err error
}

func (e *ErrAdapter) Error() string { return fmt.Sprintf("inventory: %s: %v", e.Op, e.Err) }
func (e *ErrAdapter) Unwrap() error { return e.Err }

// Inventory owns every loaded Hypervisor and Server.
type Inventory struct {
	hypervisors []*hypervisor.Hypervisor
	servers     []server.Server

	commonRatio      float64
	commonRatioKnown bool
}

// Load fetches flavors, hypervisors, and servers from src, attaches each
// server to its current hypervisor, and takes the initial (index 0)
// snapshot with validation. A server referencing an unknown hypervisor is
// dropped with a warning. A capacity mismatch during the initial
// validation snapshot is returned as a fatal ConfigMismatch error.
func Load(ctx context.Context, src Source, cfg config.Config) (*Inventory, error) {
	rawFlavors, err := src.ListFlavors(ctx)
	if err != nil {
		return nil, &ErrAdapter{Op: "list_flavors", Err: err}
	}
	flavors := make(map[string]flavor.Flavor, len(rawFlavors))
	for _, rf := range rawFlavors {
		flavors[rf.ID] = flavor.New(rf.ID, rf.Name, rf.RAMMB, rf.VCPUs)
	}

	rawHVs, err := src.ListHypervisors(ctx)
	if err != nil {
		return nil, &ErrAdapter{Op: "list_hypervisors", Err: err}
	}
	inv := &Inventory{}
	hvByHost := make(map[string]*hypervisor.Hypervisor, len(rawHVs))
	for _, rh := range rawHVs {
		hv := hypervisor.New(rh.ID, rh.Hostname, rh.Status, rh.VCPUs, rh.MemoryMB, rh.VCPUsUsed, rh.MemoryMBUsed, cfg)
		inv.hypervisors = append(inv.hypervisors, hv)
		hvByHost[rh.ID] = hv
		hvByHost[rh.Hostname] = hv
	}

	rawServers, err := src.ListServers(ctx)
	if err != nil {
		return nil, &ErrAdapter{Op: "list_servers", Err: err}
	}
	for _, rs := range rawServers {
		if rs.Status == server.StatusShelvedOffloaded {
			continue
		}
		fl, ok := flavors[rs.FlavorID]
		if !ok {
			slog.Warn("server references unknown flavor, dropping", "server", rs.ID, "flavor", rs.FlavorID)
			continue
		}
		s := server.Server{ID: rs.ID, Name: rs.Name, Flavor: fl, Status: rs.Status, CurrentHost: rs.Host}
		host, ok := rs.Host.Unpack()
		if !ok {
			slog.Warn("server has no current host, dropping", "server", rs.ID)
			continue
		}
		hv, ok := hvByHost[host]
		if !ok {
			slog.Warn("unknown hypervisor for server, dropping", "server", rs.ID, "status", rs.Status, "host", host)
			continue
		}
		hv.AddServer(s, true)
		inv.servers = append(inv.servers, s)
	}

	for _, hv := range inv.hypervisors {
		if err := hv.Snapshot(true); err != nil {
			return nil, err
		}
	}

	return inv, nil
}

// Hypervisors returns every loaded hypervisor.
func (inv *Inventory) Hypervisors() []*hypervisor.Hypervisor { return inv.hypervisors }

// Servers returns every loaded server, in load order.
func (inv *Inventory) Servers() []server.Server { return inv.servers }

// EnabledHypervisors filters Hypervisors by Enabled().
func (inv *Inventory) EnabledHypervisors() []*hypervisor.Hypervisor {
	var out []*hypervisor.Hypervisor
	for _, hv := range inv.hypervisors {
		if hv.Enabled() {
			out = append(out, hv)
		}
	}
	return out
}

// CommonRatio is the mode of {server.Ratio()} across all loaded servers.
// Ties are broken by earliest-seen-in-load-order (see DESIGN.md Open
// Question 1). The value is computed once and cached; it is fixed for the
// lifetime of a loaded inventory.
func (inv *Inventory) CommonRatio() float64 {
	if inv.commonRatioKnown {
		return inv.commonRatio
	}
	counts := make(map[int64]int)
	var order []int64
	for _, s := range inv.servers {
		r := s.Ratio()
		if counts[r] == 0 {
			order = append(order, r)
		}
		counts[r]++
	}
	var best int64
	bestCount := -1
	for _, r := range order {
		if counts[r] > bestCount {
			best = r
			bestCount = counts[r]
		}
	}
	inv.commonRatio = float64(best)
	inv.commonRatioKnown = true
	return inv.commonRatio
}

// LeftDivergent is the enabled hypervisor with score < 0 maximizing
// Divergence().left, or nil if no candidate exists.
func (inv *Inventory) LeftDivergent() *hypervisor.Hypervisor {
	ratio := inv.CommonRatio()
	var best *hypervisor.Hypervisor
	var bestLeft float64
	for _, hv := range inv.EnabledHypervisors() {
		if hv.Score(ratio) >= 0 {
			continue
		}
		left, _ := hv.Divergence(ratio)
		if best == nil || left > bestLeft {
			best, bestLeft = hv, left
		}
	}
	return best
}

// RightDivergent is the enabled hypervisor with score > 0 maximizing
// Divergence().right, or nil if no candidate exists.
func (inv *Inventory) RightDivergent() *hypervisor.Hypervisor {
	ratio := inv.CommonRatio()
	var best *hypervisor.Hypervisor
	var bestRight float64
	for _, hv := range inv.EnabledHypervisors() {
		if hv.Score(ratio) <= 0 {
			continue
		}
		_, right := hv.Divergence(ratio)
		if best == nil || right > bestRight {
			best, bestRight = hv, right
		}
	}
	return best
}

// Snapshot fans out Snapshot(validate) to every hypervisor.
func (inv *Inventory) Snapshot(validate bool) error {
	slog.Debug("taking inventory snapshot")
	for _, hv := range inv.hypervisors {
		if err := hv.Snapshot(validate); err != nil {
			return err
		}
	}
	return nil
}

// UseSnapshot fans out UseSnapshot(index, validate) to every hypervisor.
func (inv *Inventory) UseSnapshot(index int, validate bool) error {
	slog.Debug("reverting inventory to snapshot", "index", index)
	for _, hv := range inv.hypervisors {
		if err := hv.UseSnapshot(index, validate); err != nil {
			return err
		}
	}
	return nil
}

// ToDict returns the serializable projection used for reporting.
func (inv *Inventory) ToDict() map[string]any {
	ratio := inv.CommonRatio()
	hvs := make([]map[string]any, len(inv.hypervisors))
	for i, hv := range inv.hypervisors {
		hvs[i] = hv.ToDict(ratio)
	}
	return map[string]any{
		"common_ratio": ratio,
		"inventory":    hvs,
	}
}

// ValidateMigrations replays migrations against the original (index 0)
// snapshot: asserts no duplicate server ids, that every migration's source
// and destination are enabled and accept/release the move, and that total
// server count is unchanged. A failure here is a planner defect, not a
// recoverable runtime condition, so it panics rather than returning an
// error.
func (inv *Inventory) ValidateMigrations(migrations []migration.Migration) {
	if err := inv.UseSnapshot(0, false); err != nil {
		panic(fmt.Sprintf("validate_migrations: %v", err))
	}

	assertNoDuplicateServers(inv.allServers())
	originalCount := len(inv.allServers())

	for _, m := range migrations {
		src, ok := m.Source.(*hypervisor.Hypervisor)
		if !ok || !src.Enabled() {
			panic("validate_migrations: source hypervisor disabled")
		}
		dst, ok := m.Destination.(*hypervisor.Hypervisor)
		if !ok || !dst.Enabled() {
			panic("validate_migrations: destination hypervisor disabled")
		}
		if !src.RemoveServer(m.Server) {
			panic(fmt.Sprintf("validate_migrations: source could not release server %s", m.Server.ID))
		}
		if !dst.AddServer(m.Server, false) {
			panic(fmt.Sprintf("validate_migrations: destination could not accept server %s", m.Server.ID))
		}
	}

	if len(inv.allServers()) != originalCount {
		panic("validate_migrations: server count changed")
	}
	assertNoDuplicateServers(inv.allServers())
	slog.Info("validated migration list", "count", len(migrations))
}

func (inv *Inventory) allServers() []server.Server {
	var all []server.Server
	for _, hv := range inv.hypervisors {
		all = append(all, hv.Servers()...)
	}
	return all
}

func assertNoDuplicateServers(servers []server.Server) {
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if seen[s.ID] {
			panic(fmt.Sprintf("validate_migrations: duplicate server id %s", s.ID))
		}
		seen[s.ID] = true
	}
}
