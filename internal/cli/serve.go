package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/letsbehealthy/stepcoin/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("config", "", "Path to config.toml (default: ~/.stepcoin/config.toml)")
	serveCmd.Flags().String("listen", "", "Override the listen address host:port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the StepCoin API daemon",
	Long: `Start the HTTP API server and, if enabled, the background step
poller. The daemon runs until interrupted and shuts down gracefully.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = configPath()
	}
	cfg, err := daemon.Load(path)
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		host, port, err := splitListenAddr(listen)
		if err != nil {
			return err
		}
		cfg.API.Host = host
		cfg.API.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, cfg)
}
