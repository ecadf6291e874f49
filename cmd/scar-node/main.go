// Command scar-node runs one coordinator of the cluster: it loads its
// topology/tuning from a TOML config (overridable by flags), opens a TCP
// transport to its peers, and drives cfg.Threads executor.Worker goroutines
// against the configured commit protocol until interrupted.
//
// Flags follow spec.md §6 (--threads, --servers, --logtostderr) plus the
// additions SPEC_FULL.md §6 calls out as necessary for Go's flag parsing
// (--config, --coordinator-id), built on github.com/spf13/cobra and
// github.com/spf13/pflag the way the teacher's cmd/server built its flag.Bool
// CLI, generalized to cobra's subcommand-capable parser.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"scar/pkg/config"
	"scar/pkg/coordinator"
	"scar/pkg/logging"
	"scar/pkg/transport"
	"scar/pkg/workload"
)

const demoTableID = 0

func main() {
	var (
		configPath    string
		coordinatorID int
		threads       int
		serversCSV    string
		protocol      string
		logToStderr   bool
	)

	root := &cobra.Command{
		Use:   "scar-node",
		Short: "Run one coordinator of the distributed concurrency-control core.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, coordinatorID, threads, serversCSV, protocol, logToStderr)
		},
	}

	var flags *pflag.FlagSet = root.Flags()
	flags.StringVar(&configPath, "config", "", "path to a TOML config file; flags below override it")
	flags.IntVar(&coordinatorID, "coordinator-id", -1, "this process's coordinator id (overrides config)")
	flags.IntVar(&threads, "threads", 0, "worker goroutines to run (overrides config; spec.md --threads)")
	flags.StringVar(&serversCSV, "servers", "", "semicolon-separated host:port list, index order is coordinator id (spec.md --servers)")
	flags.StringVar(&protocol, "protocol", "", "commit protocol: silo|scar|twopl|rstore|aria (overrides config)")
	flags.BoolVar(&logToStderr, "logtostderr", false, "force debug-level logging to stderr regardless of config (spec.md --logtostderr)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, coordinatorID, threads int, serversCSV, protocol string, logToStderr bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serversCSV != "" {
		cfg.Servers = strings.Split(serversCSV, ";")
	}
	if coordinatorID >= 0 {
		cfg.CoordinatorID = coordinatorID
	}
	if threads > 0 {
		cfg.Threads = threads
	}
	if protocol != "" {
		cfg.Protocol = protocol
	}
	if logToStderr {
		cfg.LogLevel = "debug"
	}

	log, err := logging.New(cfg.CoordinatorID, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Warnw("metrics server exited", "err", err)
			}
		}()
	}

	addrs := make(map[int]string, len(cfg.Servers))
	for i, addr := range cfg.Servers {
		if i == cfg.CoordinatorID {
			continue
		}
		addrs[i] = addr
	}
	listenAddr := cfg.Servers[cfg.CoordinatorID]
	tcp, err := transport.NewTCP(cfg.CoordinatorID, listenAddr, addrs, cfg.InboundQueueDepth)
	if err != nil {
		return err
	}

	node, err := coordinator.New(cfg, log, tcp, demoTableID)
	if err != nil {
		return err
	}

	wl := workload.New(node.Database(), demoTableID, workload.Config{
		KeyCount:       10000,
		OperationCount: 4,
		ReadRatio:      0.5,
		Zipfian:        true,
	})
	for pid := 0; pid < cfg.Partitions; pid++ {
		wl.SeedKeys(uint32(pid))
	}
	node.SetWorkload(wl)

	log.Infow("starting coordinator",
		"coordinator_id", cfg.CoordinatorID,
		"protocol", cfg.Protocol,
		"threads", cfg.Threads,
		"listen", listenAddr)

	node.Start(1 << 30) // run until interrupted

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	node.Stop()

	total := uint64(0)
	for _, w := range node.Workers() {
		total += w.Counters.Commit
	}
	log.Infow("shutdown complete", "committed", total)
	return nil
}
