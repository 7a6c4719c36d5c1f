package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/llm/embedding"
	"github.com/BaSui01/cortexflow/memory"
	"github.com/BaSui01/cortexflow/memory/jobs"
	"github.com/BaSui01/cortexflow/types"
)

// =============================================================================
// 🗄️ memory 命令
// =============================================================================

func runMemory(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cortexflow memory search|write|delete|rebuild-index|consolidate|prune|wm|export|stats|maintain ...")
		os.Exit(1)
	}

	sub := args[0]
	rest := args[1:]

	cfg, err := config.Load(os.Getenv("CORTEXFLOW_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := memory.NewStore(memory.Config{
		Path:                  cfg.Memory.Path,
		MaxEntries:            cfg.Memory.MaxEntries,
		TopK:                  cfg.Memory.TopK,
		ChunkTokens:           cfg.Memory.ChunkTokens,
		NoveltyFloor:          cfg.Memory.NoveltyFloor,
		TombstoneRebuildRatio: cfg.Memory.TombstoneRebuildRatio,
		ConsolidationWindow:   cfg.Memory.ConsolidationWindow,
		ConsolidationMinBatch: cfg.Memory.ConsolidationMinBatch,
		PruneMaxAge:           cfg.Memory.PruneMaxAge,
		PruneMaxImportance:    cfg.Memory.PruneMaxImportance,
	}, embedding.NewHashProvider(cfg.Embedding.Dimensions), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Memory init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	switch sub {
	case "search":
		fs := flag.NewFlagSet("memory search", flag.ExitOnError)
		query := fs.String("query", "", "Search query")
		k := fs.Int("k", 5, "Result count")
		_ = fs.Parse(rest)
		hits, err := store.Retrieve(ctx, *query, *k)
		exitOn(err)
		printJSON(hits)

	case "write":
		fs := flag.NewFlagSet("memory write", flag.ExitOnError)
		kind := fs.String("kind", "episodic", "Memory kind")
		text := fs.String("text", "", "Memory text")
		tags := fs.String("tags", "", "Comma-separated tags")
		importance := fs.Float64("importance", 0.5, "Importance 0..1")
		consent := fs.Bool("consent", false, "User consent to store")
		_ = fs.Parse(rest)
		id, err := store.Write(ctx, memory.WriteRequest{
			Kind:       types.MemoryKind(*kind),
			Text:       *text,
			Tags:       splitTags(*tags),
			Importance: *importance,
			Consent:    *consent,
		})
		exitOn(err)
		fmt.Println(id)

	case "delete":
		fs := flag.NewFlagSet("memory delete", flag.ExitOnError)
		id := fs.String("id", "", "Memory id")
		_ = fs.Parse(rest)
		exitOn(store.Delete(ctx, *id))
		fmt.Println("tombstoned")

	case "rebuild-index":
		count, err := store.RebuildIndex(ctx)
		exitOn(err)
		fmt.Printf("rebuilt index with %d vectors\n", count)

	case "consolidate":
		created, err := store.Consolidate(ctx, nil)
		exitOn(err)
		fmt.Printf("created %d semantic facts\n", created)

	case "prune":
		removed, err := store.Prune(ctx)
		exitOn(err)
		fmt.Printf("pruned %d items\n", removed)

	case "wm":
		runMemoryWM(ctx, store, rest)

	case "export":
		exitOn(store.Export(ctx, os.Stdout))

	case "stats":
		printJSON(store.Stats(ctx))

	case "maintain":
		scheduler := jobs.NewScheduler(store, nil, cfg.Memory.MaintenanceSchedule, logger)
		consolidated, pruned, err := scheduler.RunMaintenance(ctx)
		exitOn(err)
		fmt.Printf("consolidated %d, pruned %d\n", consolidated, pruned)

	default:
		fmt.Fprintf(os.Stderr, "Unknown memory subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runMemoryWM(ctx context.Context, store *memory.Store, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cortexflow memory wm get|add|clear --user USER [...]")
		os.Exit(1)
	}
	action := args[0]
	fs := flag.NewFlagSet("memory wm", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	entry := fs.String("entry", "", "Entry text (for add)")
	capFlag := fs.Int("cap", 7, "Ring capacity")
	_ = fs.Parse(args[1:])

	switch action {
	case "get":
		entries, err := store.WMGet(ctx, *user, *capFlag)
		exitOn(err)
		printJSON(entries)
	case "add":
		exitOn(store.WMAdd(ctx, *user, []string{*entry}, *capFlag))
		fmt.Println("added")
	case "clear":
		exitOn(store.WMClear(ctx, *user))
		fmt.Println("cleared")
	default:
		fmt.Fprintf(os.Stderr, "Unknown wm action: %s\n", action)
		os.Exit(1)
	}
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
