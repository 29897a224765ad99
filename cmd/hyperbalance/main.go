// Command hyperbalance plans a sequence of live migrations that rebalance
// VMs across a fleet of hypervisors. It only plans; executing the printed
// commands is left to the operator.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/hyperbalance/internal/config"
	"github.com/yourusername/hyperbalance/internal/inventory"
	"github.com/yourusername/hyperbalance/internal/metrics"
	"github.com/yourusername/hyperbalance/internal/migration"
	"github.com/yourusername/hyperbalance/internal/openstacksource"
	"github.com/yourusername/hyperbalance/internal/planner"
)

var (
	authURL    = flag.String("os-auth-url", "", "Keystone auth URL (falls back to OS_AUTH_URL)")
	username   = flag.String("os-username", "", "OpenStack username (falls back to OS_USERNAME)")
	password   = flag.String("os-password", "", "OpenStack password (falls back to OS_PASSWORD)")
	projectID  = flag.String("os-project-id", "", "OpenStack project id (falls back to OS_PROJECT_ID)")
	iterations = flag.Int("iterations", planner.DefaultIterations, "outer optimize-loop iteration budget")
	debug      = flag.Bool("debug", false, "enable debug logging")
	version    = flag.Bool("version", false, "show version information")
)

var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("hyperbalance version %s\n", appVersion)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	os.Exit(run())
}

func envOr(flagValue, envKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envKey)
}

func run() int {
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: envOr(*authURL, "OS_AUTH_URL"),
		Username:         envOr(*username, "OS_USERNAME"),
		Password:         envOr(*password, "OS_PASSWORD"),
		TenantID:         envOr(*projectID, "OS_PROJECT_ID"),
	}

	ctx := context.Background()
	provider, err := openstack.AuthenticatedClient(ctx, opts)
	if err != nil {
		slog.Error("authentication failed", "error", err)
		return 1
	}

	sc, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{})
	if err != nil {
		slog.Error("failed to locate compute endpoint", "error", err)
		return 1
	}
	sc.Microversion = "2.61"

	reg := prometheus.NewRegistry()
	rec := metrics.NewRegistry(reg)

	src := openstacksource.New(sc, rec)

	inv, err := inventory.Load(ctx, src, config.Default())
	if err != nil {
		slog.Error("failed to load inventory", "error", err)
		return 1
	}

	p := planner.New(inv, rec)
	migrations := p.Optimize(*iterations)

	writeMigrations(os.Stdout, migrations)
	return 0
}

func writeMigrations(w io.Writer, migrations []migration.Migration) {
	for _, m := range migrations {
		fmt.Fprintln(w, m.String())
	}
}
