// =============================================================================
// CortexFlow 主入口
// =============================================================================
// 认知编排引擎入口点，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	cortexflow process --query "..."        # 处理单条查询
//	cortexflow process --stdin              # JSONL 作业协议
//	cortexflow interactive                  # 交互式 REPL
//	cortexflow serve --host 0.0.0.0 --port 8080
//	cortexflow config-info                  # 显示当前配置
//	cortexflow memory <subcommand>          # 记忆管理
//	cortexflow version                      # 显示版本信息
// =============================================================================
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/engine"
	"github.com/BaSui01/cortexflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(os.Args[2:])
	case "interactive":
		runInteractive(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "config-info":
		runConfigInfo(os.Args[2:])
	case "memory":
		runMemory(os.Args[2:])
	case "version":
		fmt.Printf("cortexflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `cortexflow - brain-inspired cognitive orchestration engine

Usage:
  cortexflow process --query TEXT [--mode concise|detailed|creative|analytical]
                     [--iterations N] [--memory] [--output-format text|json]
  cortexflow process --stdin
  cortexflow interactive
  cortexflow serve [--host H] [--port P] [--config FILE]
  cortexflow config-info
  cortexflow memory search|write|delete|rebuild-index|consolidate|prune|wm|export|stats|maintain ...
  cortexflow version
`)
}

// bootstrap 加载配置并构建编排器
func bootstrap(configPath string) (*config.Config, *engine.Orchestrator, *zap.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger init failed: %v\n", err)
		os.Exit(1)
	}
	orchestrator, err := engine.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Engine init failed: %v\n", err)
		os.Exit(1)
	}
	return cfg, orchestrator, logger
}

// =============================================================================
// 🧠 process 命令
// =============================================================================

func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	query := fs.String("query", "", "Query text")
	mode := fs.String("mode", "", "Response mode (concise|detailed|creative|analytical)")
	iterations := fs.Int("iterations", 1, "Reasoning iterations")
	memoryWrite := fs.Bool("memory", false, "Allow memory writes")
	outputFormat := fs.String("output-format", "text", "Output format (text|json)")
	userID := fs.String("user", "", "User ID for per-user memory")
	stdin := fs.Bool("stdin", false, "Read JSONL jobs from stdin")
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, orchestrator, logger := bootstrap(*configPath)
	defer func() { _ = logger.Sync() }()

	if *stdin {
		if err := orchestrator.RunProtocol(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Protocol error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if strings.TrimSpace(*query) == "" {
		fmt.Fprintln(os.Stderr, "Error: --query is required (or use --stdin)")
		os.Exit(1)
	}

	reqMode := cfg.Engine.DefaultMode
	if *mode != "" {
		reqMode = types.Mode(*mode)
	}

	result, err := orchestrator.ProcessQuery(context.Background(), types.QueryRequest{
		JobID:            uuid.NewString(),
		Text:             *query,
		Mode:             reqMode,
		LoopDepth:        *iterations,
		AllowMemoryWrite: *memoryWrite,
		UserID:           *userID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	fmt.Println(result.FinalAnswer)
}

// =============================================================================
// 💬 interactive 命令
// =============================================================================

func runInteractive(args []string) {
	fs := flag.NewFlagSet("interactive", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	memoryWrite := fs.Bool("memory", false, "Allow memory writes")
	userID := fs.String("user", "", "User ID for per-user memory")
	_ = fs.Parse(args)

	cfg, orchestrator, logger := bootstrap(*configPath)
	defer func() { _ = logger.Sync() }()

	fmt.Println("cortexflow interactive - type 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)
	sessionID := uuid.NewString()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, err := orchestrator.ProcessQuery(context.Background(), types.QueryRequest{
			JobID:            uuid.NewString(),
			SessionID:        sessionID,
			Text:             line,
			Mode:             cfg.Engine.DefaultMode,
			LoopDepth:        1,
			AllowMemoryWrite: *memoryWrite,
			UserID:           *userID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(result.FinalAnswer)
		if !result.CoherenceOK {
			fmt.Println("(note: coherence check did not pass for this answer)")
		}
	}
}

// =============================================================================
// ⚙️ config-info 命令
// =============================================================================

func runConfigInfo(args []string) {
	fs := flag.NewFlagSet("config-info", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	redacted := *cfg
	if redacted.LLM.APIKey != "" {
		redacted.LLM.APIKey = "***"
	}
	if redacted.Embedding.APIKey != "" {
		redacted.Embedding.APIKey = "***"
	}
	out, _ := yaml.Marshal(&redacted)
	fmt.Print(string(out))
}
