// Package flavor holds the immutable resource shape referenced by servers.
package flavor

// Flavor is a named resource shape a server is created against. It never
// changes after it is loaded.
type Flavor struct {
	ID    string
	Name  string
	RAMMB int64
	VCPUs int64
}

// New constructs a Flavor. vcpus must be positive; callers load flavors
// from the adapter, which is expected to reject malformed records upstream.
func New(id, name string, ramMB, vcpus int64) Flavor {
	return Flavor{ID: id, Name: name, RAMMB: ramMB, VCPUs: vcpus}
}
