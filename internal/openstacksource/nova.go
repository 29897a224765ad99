// Package openstacksource implements inventory.Source against a real
// OpenStack Nova API, grounded on cobaltcore-dev-cortex's
// sync/internal/openstack/nova package.
package openstacksource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/majewsky/gg/option"

	"github.com/yourusername/hyperbalance/internal/inventory"
	"github.com/yourusername/hyperbalance/internal/metrics"
)

// serverPageSize is the fixed page size used when listing servers across
// all tenants.
const serverPageSize = 1000

// NovaSource lists hypervisors, servers, and flavors from a Nova compute
// service client.
type NovaSource struct {
	Client  *gophercloud.ServiceClient
	Metrics metrics.Recorder
}

// New constructs a NovaSource. sc must already be authenticated, with
// Microversion set to at least "2.61" (hypervisor ids as UUIDs since
// 2.53, flavor extra-specs since 2.61 — same reasoning cobaltcore's
// nova_api.go documents). A nil recorder uses metrics.NoopRecorder.
func New(sc *gophercloud.ServiceClient, rec metrics.Recorder) *NovaSource {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &NovaSource{Client: sc, Metrics: rec}
}

func (s *NovaSource) timed(resource string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.Metrics.AdapterRequest(resource, time.Since(start))
	return err
}

// ListFlavors returns every flavor, public and private.
func (s *NovaSource) ListFlavors(ctx context.Context) ([]inventory.RawFlavor, error) {
	slog.Info("fetching nova data", "resource", "flavors")
	var out []inventory.RawFlavor
	err := s.timed("flavors", func() error {
		lo := flavors.ListOpts{AccessType: flavors.AllAccess}
		pages, err := flavors.ListDetail(s.Client, lo).AllPages(ctx)
		if err != nil {
			return err
		}
		var data struct {
			Flavors []struct {
				ID    string `json:"id"`
				Name  string `json:"name"`
				RAM   int64  `json:"ram"`
				VCPUs int64  `json:"vcpus"`
			} `json:"flavors"`
		}
		if err := pages.(flavors.FlavorPage).ExtractInto(&data); err != nil {
			return err
		}
		out = make([]inventory.RawFlavor, len(data.Flavors))
		for i, f := range data.Flavors {
			out[i] = inventory.RawFlavor{ID: f.ID, Name: f.Name, RAMMB: f.RAM, VCPUs: f.VCPUs}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("fetched", "resource", "flavors", "count", len(out))
	return out, nil
}

// novaServer is the subset of the Nova server representation this adapter
// needs, decoded directly instead of through gophercloud's own Server type
// so the hypervisor-hostname extension attribute is reachable without
// guessing at field names.
type novaServer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Flavor struct {
		ID string `json:"id"`
	} `json:"flavor"`
	HypervisorHostname string `json:"OS-EXT-SRV-ATTR:hypervisor_hostname"`
}

// ListServers returns every non-deleted server across all tenants,
// paginating with a fixed page size. SHELVED_OFFLOADED servers are left
// in the result; filtering them out is internal/inventory.Load's job.
func (s *NovaSource) ListServers(ctx context.Context) ([]inventory.RawServer, error) {
	slog.Info("fetching nova data", "resource", "servers")
	var out []inventory.RawServer
	err := s.timed("servers", func() error {
		lo := servers.ListOpts{AllTenants: true, Limit: serverPageSize}
		pages, err := servers.List(s.Client, lo).AllPages(ctx)
		if err != nil {
			return err
		}
		var data struct {
			Servers []novaServer `json:"servers"`
		}
		if err := pages.(servers.ServerPage).ExtractInto(&data); err != nil {
			return err
		}
		out = make([]inventory.RawServer, len(data.Servers))
		for i, srv := range data.Servers {
			var host option.Option[string]
			if srv.HypervisorHostname != "" {
				host = option.Some(srv.HypervisorHostname)
			}
			out[i] = inventory.RawServer{
				ID:       srv.ID,
				Name:     srv.Name,
				Status:   srv.Status,
				FlavorID: srv.Flavor.ID,
				Host:     host,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("fetched", "resource", "servers", "count", len(out))
	return out, nil
}

// hypervisorDetail is the raw os-hypervisors/detail JSON shape. Gophercloud
// mishandles pagination for this endpoint (same caveat noted in
// cobaltcore's nova_api.go), so it is fetched with a raw paginated loop
// instead of going through the gophercloud hypervisors package.
type hypervisorDetail struct {
	ID                 string `json:"id"`
	HypervisorHostname string `json:"hypervisor_hostname"`
	Status             string `json:"status"`
	VCPUs              int64  `json:"vcpus"`
	MemoryMB           int64  `json:"memory_mb"`
	VCPUsUsed          int64  `json:"vcpus_used"`
	MemoryMBUsed       int64  `json:"memory_mb_used"`
}

// ListHypervisors fetches every hypervisor via a raw paginated HTTP GET
// against os-hypervisors/detail.
func (s *NovaSource) ListHypervisors(ctx context.Context) ([]inventory.RawHypervisor, error) {
	slog.Info("fetching nova data", "resource", "hypervisors")
	var out []inventory.RawHypervisor
	err := s.timed("hypervisors", func() error {
		initialURL := s.Client.Endpoint + "os-hypervisors/detail"
		nextURL := &initialURL
		for nextURL != nil {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, *nextURL, http.NoBody)
			if err != nil {
				return err
			}
			req.Header.Set("X-Auth-Token", s.Client.Token())
			req.Header.Set("X-OpenStack-Nova-API-Version", s.Client.Microversion)
			resp, err := s.Client.HTTPClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			}
			var list struct {
				Hypervisors []hypervisorDetail `json:"hypervisors"`
				Links       []struct {
					Rel  string `json:"rel"`
					Href string `json:"href"`
				} `json:"hypervisors_links"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
				return err
			}
			for _, h := range list.Hypervisors {
				out = append(out, inventory.RawHypervisor{
					ID: h.ID, Hostname: h.HypervisorHostname, Status: h.Status,
					VCPUs: h.VCPUs, MemoryMB: h.MemoryMB,
					VCPUsUsed: h.VCPUsUsed, MemoryMBUsed: h.MemoryMBUsed,
				})
			}
			nextURL = nil
			for _, link := range list.Links {
				if link.Rel == "next" {
					href := link.Href
					nextURL = &href
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("fetched", "resource", "hypervisors", "count", len(out))
	return out, nil
}
