// Package planner implements the pairwise hypervisor-mixing heuristic, the
// buffer-insertion migration planner, and the outer optimize loop.
//
// The planner is strictly single-threaded over the inventory's live
// snapshot: migrations are derived and validated sequentially, with no
// concurrent planning of independent hypervisor pairs.
package planner

import (
	"log/slog"
	"math"
	"sort"

	"github.com/yourusername/hyperbalance/internal/hypervisor"
	"github.com/yourusername/hyperbalance/internal/inventory"
	"github.com/yourusername/hyperbalance/internal/metrics"
	"github.com/yourusername/hyperbalance/internal/migration"
	"github.com/yourusername/hyperbalance/internal/server"
)

// DefaultIterations is the outer-loop iteration budget used when a caller
// does not specify one, matching the original's optimize(iterations=3).
const DefaultIterations = 3

// Planner mixes hypervisors and plans migrations against inv.
type Planner struct {
	Inventory *inventory.Inventory
	Metrics   metrics.Recorder
}

// New constructs a Planner. A nil recorder uses metrics.NoopRecorder.
func New(inv *inventory.Inventory, rec metrics.Recorder) *Planner {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Planner{Inventory: inv, Metrics: rec}
}

func scoreWithVM(hv *hypervisor.Hypervisor, s server.Server, referenceRatio float64) float64 {
	if !hv.AddServer(s, false) {
		return hv.Score(referenceRatio)
	}
	score := hv.Score(referenceRatio)
	hv.RemoveServer(s)
	return score
}

func containsServer(servers []server.Server, s server.Server) bool {
	for _, existing := range servers {
		if existing.Equal(s) {
			return true
		}
	}
	return false
}

// MixHypervisors redistributes subject's and improvement's VMs to reduce
// their combined |score|. Returns the implied migrations, or an empty
// slice if no improvement was found (VMs did not fit, or the combined
// score did not strictly decrease) — in which case both hypervisors' live
// server lists are restored to their pre-call state.
func (p *Planner) MixHypervisors(subject, improvement *hypervisor.Hypervisor) []migration.Migration {
	ratio := p.Inventory.CommonRatio()
	slog.Info("mixing hypervisors", "subject", subject.Name, "improvement", improvement.Name)

	scoreBefore := math.Abs(subject.Score(ratio)) + math.Abs(improvement.Score(ratio))

	subjectVMs := subject.PopAll()
	improvementVMs := improvement.PopAll()

	vms := make([]server.Server, 0, len(subjectVMs)+len(improvementVMs))
	vms = append(vms, subjectVMs...)
	vms = append(vms, improvementVMs...)

	for len(vms) > 0 {
		bestIdx := 0
		bestScore := math.Abs(scoreWithVM(subject, vms[0], ratio))
		for i := 1; i < len(vms); i++ {
			s := math.Abs(scoreWithVM(subject, vms[i], ratio))
			if s < bestScore {
				bestIdx, bestScore = i, s
			}
		}
		if !subject.AddServer(vms[bestIdx], false) {
			break
		}
		vms = append(vms[:bestIdx], vms[bestIdx+1:]...)
	}

	for _, vm := range vms {
		if !improvement.AddServer(vm, false) {
			slog.Warn("could not fit VMs in hypervisors", "subject", subject.Name, "improvement", improvement.Name)
			subject.SetServers(subjectVMs)
			improvement.SetServers(improvementVMs)
			return nil
		}
	}

	scoreAfter := math.Abs(subject.Score(ratio)) + math.Abs(improvement.Score(ratio))
	slog.Info("mix score", "before", scoreBefore, "after", scoreAfter)
	if scoreAfter >= scoreBefore {
		subject.SetServers(subjectVMs)
		improvement.SetServers(improvementVMs)
		return nil
	}

	var migrations []migration.Migration
	for _, s := range subject.Servers() {
		if !containsServer(subjectVMs, s) {
			migrations = append(migrations, migration.New(s, improvement, subject))
		}
	}
	for _, s := range improvement.Servers() {
		if !containsServer(improvementVMs, s) {
			migrations = append(migrations, migration.New(s, subject, improvement))
		}
	}
	return migrations
}

// IncreaseBuffer finds one auxiliary move that frees capacity on target,
// excluding the hosts/servers named in skip, and commits it immediately.
// Returns nil if nothing fits.
func (p *Planner) IncreaseBuffer(target *hypervisor.Hypervisor, skipHostIDs, skipServerIDs map[string]bool) *migration.Migration {
	var candidates []*hypervisor.Hypervisor
	for _, hv := range p.Inventory.EnabledHypervisors() {
		if hv.ID == target.ID || skipHostIDs[hv.ID] {
			continue
		}
		candidates = append(candidates, hv)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AvailableVCPUs()*candidates[i].AvailableRAM() >
			candidates[j].AvailableVCPUs()*candidates[j].AvailableRAM()
	})

	var victims []server.Server
	for _, s := range target.Servers() {
		if !skipServerIDs[s.ID] {
			victims = append(victims, s)
		}
	}
	sort.SliceStable(victims, func(i, j int) bool { return victims[i].Length() > victims[j].Length() })

	for _, buff := range candidates {
		for _, victim := range victims {
			if buff.AddServer(victim, false) {
				target.RemoveServer(victim)
				p.Metrics.BufferInserted()
				return &migration.Migration{Server: victim, Source: target, Destination: buff}
			}
		}
	}

	slog.Warn("could not find available resources to migrate", "target", target.Name)
	return nil
}

// TryMigration attempts m, inserting buffer migrations as needed when the
// destination lacks instantaneous headroom. Returns the migrations to
// perform (buffers followed by m itself), the reverses of any inserted
// buffers, and false if no feasible sequence exists (m.Server is restored
// to its source in that case).
func (p *Planner) TryMigration(m migration.Migration) (migrations, postMigrations []migration.Migration, ok bool) {
	src := m.Source.(*hypervisor.Hypervisor)
	dst := m.Destination.(*hypervisor.Hypervisor)

	if !src.RemoveServer(m.Server) {
		panic("try_migration: source could not release server")
	}

	for !dst.AddServer(m.Server, false) {
		slog.Info("unable to migrate server, adding buffer", "server", m.Server.ID)
		buf := p.IncreaseBuffer(dst, map[string]bool{src.ID: true}, map[string]bool{m.Server.ID: true})
		if buf == nil {
			src.AddServer(m.Server, false)
			return nil, nil, false
		}
		migrations = append(migrations, *buf)
		postMigrations = append(postMigrations, buf.Reverse())
	}
	migrations = append(migrations, m)
	return migrations, postMigrations, true
}

func containsMigration(migrations []migration.Migration, m migration.Migration) bool {
	for _, existing := range migrations {
		if existing.Server.Equal(m.Server) &&
			existing.Source.(*hypervisor.Hypervisor).ID == m.Source.(*hypervisor.Hypervisor).ID &&
			existing.Destination.(*hypervisor.Hypervisor).ID == m.Destination.(*hypervisor.Hypervisor).ID {
			return true
		}
	}
	return false
}

// PlanMigrations resolves needed (the logical moves mix_hypervisors
// implied, ignoring intermediate capacity) into an actually-executable
// sequence. On infeasibility it restores the inventory to its latest
// snapshot and returns an empty slice.
func (p *Planner) PlanMigrations(needed []migration.Migration) []migration.Migration {
	var migrations []migration.Migration
	skipServers := map[string]int{}

	for i := 0; i < len(needed); i++ {
		m := needed[i]
		if skipServers[m.Server.ID] > 0 {
			skipServers[m.Server.ID]--
			continue
		}

		newMigrations, postMigrations, ok := p.TryMigration(m)
		if !ok {
			slog.Warn("could not get enough free resources")
			p.Inventory.UseSnapshot(-1, false)
			p.Metrics.PlanInfeasible()
			return []migration.Migration{}
		}
		migrations = append(migrations, newMigrations...)

		for _, post := range postMigrations {
			var pendingDestination migration.Host
			pendingCount := 0
			for _, nm := range needed {
				if nm.Server.Equal(post.Server) && !containsMigration(migrations, nm) {
					pendingCount++
					pendingDestination = nm.Destination
				}
			}
			if pendingCount > 0 {
				if pendingCount != 1 {
					panic("plan_migrations: expected exactly one pending destination")
				}
				skipServers[post.Server.ID]++
				post.Destination = pendingDestination
			}
			needed = append(needed, post)
		}
	}

	return migrations
}

// Fuse collapses adjacent migrations of the same server into one, to a
// fixed point.
func Fuse(migrations []migration.Migration) []migration.Migration {
	for {
		fused := false
		for i := 0; i < len(migrations)-1; i++ {
			if migrations[i].SameServer(migrations[i+1]) {
				merged := migration.New(migrations[i].Server, migrations[i].Source, migrations[i+1].Destination)
				next := make([]migration.Migration, 0, len(migrations)-1)
				next = append(next, migrations[:i]...)
				next = append(next, merged)
				next = append(next, migrations[i+2:]...)
				migrations = next
				fused = true
				break
			}
		}
		if !fused {
			break
		}
	}
	return migrations
}

// Optimize generates and returns a list of migrations to improve
// hypervisor resource distribution, iterating up to iterations times.
// Each accepted mix restarts the subject scan; if a full pass over
// enabled hypervisors yields no accepted mix, optimization stops early.
func (p *Planner) Optimize(iterations int) []migration.Migration {
	migrations := []migration.Migration{}

	for iterations > 0 {
		ratio := p.Inventory.CommonRatio()
		subjects := append([]*hypervisor.Hypervisor{}, p.Inventory.EnabledHypervisors()...)
		sort.SliceStable(subjects, func(i, j int) bool {
			return math.Abs(subjects[i].Score(ratio)) > math.Abs(subjects[j].Score(ratio))
		})

		accepted := false
		for _, subject := range subjects {
			var improvement *hypervisor.Hypervisor
			if subject.Score(ratio) < 0 {
				improvement = p.Inventory.RightDivergent()
			} else {
				improvement = p.Inventory.LeftDivergent()
			}
			if improvement == nil {
				continue
			}

			needed := p.MixHypervisors(subject, improvement)
			p.Inventory.UseSnapshot(-1, false)
			if len(needed) == 0 {
				continue
			}

			planned := p.PlanMigrations(needed)
			migrations = append(migrations, planned...)
			migrations = Fuse(migrations)

			p.Inventory.Snapshot(false)
			p.Inventory.ValidateMigrations(migrations)

			p.Metrics.IterationAccepted()
			p.Metrics.MigrationsPlanned(len(planned))

			iterations--
			accepted = true
			break
		}

		if !accepted {
			return migrations
		}
	}

	return migrations
}
