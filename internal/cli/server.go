package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/LeJamon/bookkeep/internal/config"
	"github.com/LeJamon/bookkeep/internal/engine"
	"github.com/LeJamon/bookkeep/internal/grpcapi"
)

// serverCmd represents the server command (default action): it opens the
// configured storage.Backend, wires every ledger service onto it, and
// serves a gRPC health/reflection endpoint operators can probe while the
// engine is embedded by another process (the demo CLI commands below, or
// a future RPC surface registered on the same *grpc.Server).
var serverCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the configured ledger storage backend and serve health checks",
	Long: `serve opens the storage backend named in the configuration (memory,
postgres, sqlite or pebble), wires the account/entry/transaction/rollup
services on top of it, and exposes a gRPC health and reflection endpoint
so operators can probe liveness the same way they would any other gRPC
service in this stack.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.RunE = runServer
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := context.Background()
	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	if !quiet {
		fmt.Println("bookkeepd - content-addressed double-entry accounting engine")
		fmt.Printf("  storage backend: %s\n", cfg.Storage.Backend)
		fmt.Printf("  cache:           enabled=%v size=%d\n", cfg.Cache.Enabled, cfg.Cache.Size)
		fmt.Printf("  gRPC listen:     %s\n", cfg.Server.ListenAddr)
	}

	srvCfg := grpcapi.DefaultServerConfig()
	srvCfg.Address = cfg.Server.ListenAddr
	srv, err := grpcapi.NewServer(srvCfg, grpcapi.Services{
		Ready: func() bool { return eng.Backend != nil },
	})
	if err != nil {
		return fmt.Errorf("building gRPC server: %w", err)
	}
	srv.MarkServing()

	if !quiet {
		log.Printf("serving health/reflection on %s", cfg.Server.ListenAddr)
	}
	return srv.Start()
}

// loadConfig reads the --conf file (if any) through the shared config
// loader, applying BOOKKEEP_-prefixed environment overrides.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configFile)
}
