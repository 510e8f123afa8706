package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check backend health",
	Long:  `Check connectivity and health of the configured vector store, graph store and LLM service.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	zl := zerolog.Nop()
	resCfg := resilienceConfig(cfg.Resilience)

	vectors := buildVectorStore(cfg, resCfg, zl)
	graph := buildGraphStore(cfg, resCfg, zl)
	svc, err := buildLLM(cfg, resCfg, zl)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	fmt.Printf("config:       %s\n", config.NewLoader(cfgFile).GetConfigPath())
	fmt.Printf("data dir:     %s\n", cfg.DataDir)

	healthy := true
	healthy = printHealth("vector store", vectors.IsHealthy(ctx)) && healthy
	healthy = printHealth("graph store", graph.IsHealthy(ctx)) && healthy
	healthy = printHealth("llm service", svc.IsHealthy(ctx)) && healthy

	if !healthy {
		return fmt.Errorf("one or more backends are unhealthy")
	}
	return nil
}

func printHealth(name string, err error) bool {
	if err != nil {
		fmt.Printf("%-13s unhealthy: %v\n", name+":", err)
		return false
	}
	fmt.Printf("%-13s ok\n", name+":")
	return true
}
