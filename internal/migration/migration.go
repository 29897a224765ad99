// Package migration describes a single planned live-migration.
package migration

import (
	"fmt"

	"github.com/yourusername/hyperbalance/internal/server"
)

// Host is the minimal hypervisor-identity surface a Migration needs.
// internal/hypervisor.Hypervisor satisfies this; the interface exists so
// this package has no import-cycle dependency on internal/hypervisor.
type Host interface {
	HostID() string
	Hostname() string
}

// Migration is a value object: a server moving from a source host to a
// destination host.
type Migration struct {
	Server      server.Server
	Source      Host
	Destination Host
}

// New constructs a Migration.
func New(s server.Server, source, destination Host) Migration {
	return Migration{Server: s, Source: source, Destination: destination}
}

// Reverse swaps source and destination. Reverse().Reverse() == the original.
func (m Migration) Reverse() Migration {
	return Migration{Server: m.Server, Source: m.Destination, Destination: m.Source}
}

// String renders the live-migration CLI command a caller would execute.
func (m Migration) String() string {
	return fmt.Sprintf(
		"openstack server migrate --live-migration --host %s %s # %s:%s>%s",
		m.Destination.Hostname(), m.Server.ID, m.Server.Name, m.Source.Hostname(), m.Destination.Hostname(),
	)
}

// SameServer reports whether two migrations move the same server, used by
// planner.Fuse to collapse adjacent entries.
func (m Migration) SameServer(other Migration) bool {
	return m.Server.Equal(other.Server)
}
