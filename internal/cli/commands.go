package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/letsbehealthy/stepcoin/internal/api"
	"github.com/letsbehealthy/stepcoin/internal/domain"
	"github.com/letsbehealthy/stepcoin/internal/infra/catalog"
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(rewardsCmd)
}

// ─── version ────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the StepCoin version",
	Run: func(cmd *cobra.Command, args []string) {
		printf("stepcoin %s\n", api.Version)
	},
}

// ─── rewards ────────────────────────────────────────────────────────────────

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "List the reward catalog",
	Long:  `Print every redeemable reward and its StepCoin cost.`,
	Run: func(cmd *cobra.Command, args []string) {
		for _, item := range catalog.Default().ListItems() {
			printf("%-32s %s\n", item.Name, domain.FormatCoins(item.Cost))
		}
	},
}

// splitListenAddr parses a host:port override.
func splitListenAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	return host, port, nil
}
