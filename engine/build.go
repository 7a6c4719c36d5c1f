package engine

import (
	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/coherence"
	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/critique"
	"github.com/BaSui01/cortexflow/gating"
	"github.com/BaSui01/cortexflow/internal/cache"
	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/llm/embedding"
	"github.com/BaSui01/cortexflow/llm/providers/gemini"
	"github.com/BaSui01/cortexflow/llm/providers/mock"
	"github.com/BaSui01/cortexflow/llm/providers/ollama"
	"github.com/BaSui01/cortexflow/memory"
	"github.com/BaSui01/cortexflow/neuromod"
	"github.com/BaSui01/cortexflow/perception"
	"github.com/BaSui01/cortexflow/reasoners"
	"github.com/BaSui01/cortexflow/router"
	"github.com/BaSui01/cortexflow/workspace"
)

// Build assembles a fully wired orchestrator from configuration.
func Build(cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := buildProvider(cfg, logger)
	gateway := llm.NewGateway(provider, llm.GatewayConfig{
		Timeout:     cfg.LLM.Timeout,
		Retries:     cfg.LLM.Retries,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		RPM:         cfg.LLM.RPM,
	}, logger)

	if cfg.Cache.Enabled {
		completionCache, err := cache.New(cache.Config{
			Addr:       cfg.Cache.RedisAddr,
			DefaultTTL: cfg.Cache.TTL,
		}, logger)
		if err != nil {
			logger.Warn("completion cache unavailable", zap.Error(err))
		} else {
			gateway.WithCache(completionCache)
		}
	}

	embedder := buildEmbedder(cfg)

	var store *memory.Store
	if cfg.Memory.Enabled {
		var err error
		store, err = memory.NewStore(memory.Config{
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
		}, embedder, logger)
		if err != nil {
			return nil, err
		}
	}

	preprocessor := router.NewPreprocessor(store, cfg.Workspace.WMSlots, cfg.Memory.TopK, logger)

	deps := Deps{
		Adapter:      perception.NewAdapter(embedder, logger),
		Preprocessor: preprocessor,
		Classifier:   router.NewClassifier(gateway, preprocessor, logger),
		Executor:     reasoners.NewExecutor(gateway, cfg.Engine.MaxConcurrentAgents, logger),
		CritiqueMgr:  critique.NewManager(gateway, logger),
		CoherenceEng: coherence.NewEngine(gateway, cfg.Engine.CoherenceThreshold, logger),
		GatingEng: gating.NewEngine(
			buildPolicy(cfg),
			gating.NewResourceTracker(cfg.Gating.MaxBudget, cfg.Gating.BudgetDecayRate),
			logger,
		),
		WSManager: workspace.NewManager(
			workspace.Config{
				MaxItems:        cfg.Workspace.MaxItems,
				ItemTTL:         cfg.Workspace.ItemTTL,
				CleanupInterval: cfg.Workspace.CleanupInterval,
			},
			workspace.WMConfig{
				MaxSlots:  cfg.Workspace.WMSlots,
				DecayRate: cfg.Workspace.WMDecayRate,
			},
			logger,
		),
		Controller: neuromod.NewController(logger),
		Gateway:    gateway,
		Store:      store,
	}

	return New(cfg.Engine, deps, logger), nil
}

func buildProvider(cfg *config.Config, logger *zap.Logger) llm.Provider {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.New(gemini.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	default:
		return mock.New()
	}
}

func buildEmbedder(cfg *config.Config) embedding.Provider {
	switch cfg.Embedding.Provider {
	case "gemini":
		return embedding.NewGeminiProvider(embedding.GeminiConfig{
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		return embedding.NewHashProvider(cfg.Embedding.Dimensions)
	}
}

func buildPolicy(cfg *config.Config) gating.Policy {
	base := &gating.DeterministicPolicy{
		MinConfidenceThreshold: cfg.Gating.MinConfidenceThreshold,
		MaxSpeculativeRatio:    cfg.Gating.MaxSpeculativeRatio,
		PriorityBoostFactor:    cfg.Gating.PriorityBoostFactor,
	}
	if cfg.Gating.Adaptive {
		return gating.NewAdaptivePolicy(base)
	}
	return base
}
