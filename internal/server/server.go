// Package server models a VM: its resource demand, identity, status, and
// current host.
package server

import (
	"math"

	"github.com/majewsky/gg/option"

	"github.com/yourusername/hyperbalance/internal/flavor"
)

// Status values the planner understands explicitly; anything else is
// treated as opaque and passes through untouched.
const (
	StatusActive           = "ACTIVE"
	StatusShelvedOffloaded = "SHELVED_OFFLOADED"
)

// Server is a VM with a reference to its Flavor. It is immutable once
// loaded: migrating a server changes which Hypervisor's list holds it, not
// the Server value itself.
type Server struct {
	ID          string
	Name        string
	Flavor      flavor.Flavor
	Status      string
	CurrentHost option.Option[string]
}

// RAM is the memory demand in MB, taken from the referenced flavor.
func (s Server) RAM() int64 { return s.Flavor.RAMMB }

// VCPUs is the vCPU demand, taken from the referenced flavor.
func (s Server) VCPUs() int64 { return s.Flavor.VCPUs }

// Ratio is floor(ram / vcpus). Flavors always carry a positive vcpus count,
// so this never hits the hypervisor's zero-vcpus degenerate case.
func (s Server) Ratio() int64 {
	return s.RAM() / s.VCPUs()
}

// Length is sqrt(ram^2 + vcpus^2), the magnitude used to scale divergence
// and to rank buffer-migration victims by size.
func (s Server) Length() float64 {
	ram := float64(s.RAM())
	vcpus := float64(s.VCPUs())
	return math.Sqrt(ram*ram + vcpus*vcpus)
}

// Active reports whether the server's status is ACTIVE.
func (s Server) Active() bool {
	return s.Status == StatusActive
}

// DivergenceFrom is the signed scalar projection of this server's ratio
// onto the deviation from a reference RAM/vCPU line. Positive means the
// server is RAM-heavy relative to the reference; negative means vCPU-heavy.
func (s Server) DivergenceFrom(referenceRatio float64) float64 {
	angle := math.Atan(float64(s.Ratio())) - math.Atan(referenceRatio)
	return s.Length() * math.Sin(angle)
}

// Equal is identifier equality, matching the original's __eq__.
func (s Server) Equal(other Server) bool {
	return s.ID == other.ID
}
