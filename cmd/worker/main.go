// The worker binary executes one load+validate task and exits. The server
// spawns it per request so an engine crash dies here instead of in the
// serving process. Protocol: one JSON task on stdin, one JSON result on
// stdout, exit zero; any non-zero exit is an infrastructure failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"veritax/internal/engine"
	_ "veritax/internal/engine/enginetest"
	"veritax/internal/offline"
	"veritax/internal/platform/config"
	"veritax/internal/platform/logger"
	"veritax/internal/validation"
	"veritax/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Logs go to stderr; stdout carries only the result JSON.
	log := logger.NewTo(os.Stderr)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)

	var task worker.Task
	if err := json.NewDecoder(os.Stdin).Decode(&task); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	if task.CacheDir != "" {
		cfg.CacheDir = task.CacheDir
	}

	guard := offline.NewGuard(log)
	eng, err := engine.New(cfg.Engine.Binding, engine.Config{
		CacheDir:  cfg.CacheDir,
		Transport: guard,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	defer eng.Close()

	// The server owns run persistence; this process only computes.
	svc := validation.New(cfg, eng, guard, validation.NewMemoryRunStore(), log)
	defer svc.Close()

	result, err := svc.ExecuteTask(context.Background(), task)
	if err != nil {
		return fmt.Errorf("execute task %s: %w", task.RunID, err)
	}
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
