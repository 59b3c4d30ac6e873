package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/canvaschat/internal/canvasfile"
	"github.com/codefionn/canvaschat/internal/config"
	"github.com/codefionn/canvaschat/internal/fs"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/codefionn/canvaschat/internal/orchestrator"
	"github.com/codefionn/canvaschat/internal/tools"
)

const usage = `Usage: canvaschat <command> [options]

Commands:
  complete   Run one completion on a canvas node and save the canvas
  serve      Serve a canvas over HTTP and websocket
  window     Print the messages a completion on a node would send
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) (err error) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}

	switch args[0] {
	case "complete":
		return runComplete(args[1:])
	case "serve":
		return runServe(args[1:])
	case "window":
		return runWindow(args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return flag.ErrHelp
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	canvasPath string
	vaultDir   string
	nodeID     string
}

func newFlagSet(name string, withNode bool) (*flag.FlagSet, *commonFlags) {
	cf := &commonFlags{}
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.SetOutput(os.Stderr)
	set.StringVar(&cf.configPath, "config", config.GetConfigPath(), "Path to the configuration file")
	set.StringVar(&cf.canvasPath, "canvas", "", "Canvas file to operate on")
	set.StringVar(&cf.vaultDir, "vault", "", "Directory the canvas and its images live in (defaults to the canvas directory)")
	if withNode {
		set.StringVar(&cf.nodeID, "node", "", "Node id to complete")
	}
	set.Usage = func() {
		fmt.Fprintf(set.Output(), "Usage: canvaschat %s [options]\n\nOptions:\n", name)
		set.PrintDefaults()
	}
	return set, cf
}

func (cf *commonFlags) validate(withNode bool) error {
	if strings.TrimSpace(cf.canvasPath) == "" {
		return errors.New("-canvas is required")
	}
	if withNode && strings.TrimSpace(cf.nodeID) == "" {
		return errors.New("-node is required")
	}
	return nil
}

// vault splits the canvas path into the vault root and the canvas path
// relative to it.
func (cf *commonFlags) vault() (root, rel string, err error) {
	canvasAbs, err := filepath.Abs(cf.canvasPath)
	if err != nil {
		return "", "", err
	}
	root = filepath.Dir(canvasAbs)
	if cf.vaultDir != "" {
		if root, err = filepath.Abs(cf.vaultDir); err != nil {
			return "", "", err
		}
	}
	rel, err = filepath.Rel(root, canvasAbs)
	if err != nil {
		return "", "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("canvas %s is outside vault %s", cf.canvasPath, root)
	}
	return root, filepath.ToSlash(rel), nil
}

// setupLogger initializes the global logger from cfg, honoring the
// CANVASCHAT_LOG_LEVEL and CANVASCHAT_LOG_PATH overrides.
func setupLogger(cfg *config.Config) error {
	if envLevel := strings.TrimSpace(os.Getenv("CANVASCHAT_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("CANVASCHAT_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}
	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func closeLogger() {
	if err := logger.Global().Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", err)
	}
}

// app bundles the collaborators every command needs.
type app struct {
	cfg  *config.Config
	doc  *canvasfile.Document
	orch *orchestrator.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, cf *commonFlags, opts ...orchestrator.Option) (*app, error) {
	root, rel, err := cf.vault()
	if err != nil {
		return nil, err
	}
	fsys, err := fs.NewDiskFS(root)
	if err != nil {
		return nil, err
	}
	doc, err := canvasfile.Load(ctx, fsys, rel)
	if err != nil {
		return nil, err
	}
	images := canvasfile.NewImages(fsys, rel)

	keys := cfg.Keyring()
	apiKey, err := keys.Reveal(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("open %s key: %w", cfg.Provider, err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for %s, set one of %s", cfg.Provider, strings.Join(config.EnvVarHints(cfg.Provider), ", "))
	}
	source, err := llm.NewSource(ctx, cfg.Provider, cfg.Model, apiKey)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewBuiltinRegistry(cfg, keys, images)
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:  doc.Store(),
		Source: source,
		Tools:  registry,
		Images: images,
		Logger: logger.Global(),
	}, orchestrator.SettingsFromConfig(cfg), opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("loaded %s from %s (%s/%s, %d tools)", rel, root, source.Name(), cfg.Model, registry.Len())
	return &app{cfg: cfg, doc: doc, orch: orch}, nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
