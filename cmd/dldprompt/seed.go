package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-dldprompt/internal/config"
	"github.com/ahrav/go-dldprompt/internal/worker"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the seed entries into the configured knowledge store",
	Long: `Write ontology, template, guideline, rubric and constraint entries into the
knowledge store. Entries come from knowledge.seed_file, or the built-in seed
when unset. Existing entries with the same key are replaced.

Examples:
  DLDPROMPT_KNOWLEDGE_BACKEND=redis dldprompt seed`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var client *redis.Client
	if cfg.Knowledge.Backend == config.BackendRedis {
		client = redis.NewClient(cfg.RedisOptions())
		defer client.Close()
	}
	entries, err := worker.LoadSeedEntries(cfg.Knowledge.SeedFile)
	if err != nil {
		return err
	}
	if client == nil {
		_, err = worker.InitializeKnowledgeStore(ctx, cfg, nil)
	} else {
		_, err = worker.InitializeKnowledgeStore(ctx, cfg, client)
	}
	if err != nil {
		return err
	}

	logger.Info("knowledge store seeded", "backend", cfg.Knowledge.Backend, "entries", len(entries))
	cmd.Printf("seeded %d entries into the %s store\n", len(entries), cfg.Knowledge.Backend)
	return nil
}
