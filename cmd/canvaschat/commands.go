package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/codefionn/canvaschat/internal/config"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/codefionn/canvaschat/internal/orchestrator"
	"github.com/codefionn/canvaschat/internal/securemem"
	"github.com/codefionn/canvaschat/internal/web"
	"golang.org/x/term"
)

const defaultWrapWidth = 100

func runComplete(args []string) error {
	set, cf := newFlagSet("complete", true)
	if err := set.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(true); err != nil {
		set.Usage()
		return err
	}

	cfg, err := loadConfig(cf.configPath)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}
	defer closeLogger()
	securemem.Init()
	defer securemem.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, cf)
	if err != nil {
		return err
	}

	out, runErr := a.orch.Complete(ctx, cf.nodeID, orchestrator.ModeUser, orchestrator.Options{})
	if err := a.doc.Save(context.Background()); err != nil {
		return fmt.Errorf("failed to save canvas: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	if out.InputNodeID != "" && out.CompletionID == "" {
		fmt.Fprintf(os.Stderr, "Created input node %s\n", out.InputNodeID)
		return nil
	}
	if out.ToolRounds > 0 {
		fmt.Fprintf(os.Stderr, "Completed after %d tool round(s), last node %s\n", out.ToolRounds, out.LastNodeID)
	}
	return printMarkdown(os.Stdout, out.Text)
}

// printMarkdown renders text with glamour when w is a terminal.
func printMarkdown(w *os.File, text string) error {
	fd := int(w.Fd())
	if !term.IsTerminal(fd) {
		_, err := io.WriteString(w, text+"\n")
		return err
	}

	width := defaultWrapWidth
	if cols, _, err := term.GetSize(fd); err == nil && cols > 0 && cols < width {
		width = cols
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		logger.Warn("failed to render markdown: %v", err)
		rendered = text + "\n"
	}
	_, err = io.WriteString(w, rendered)
	return err
}

func runServe(args []string) error {
	set, cf := newFlagSet("serve", false)
	var listenAddr string
	set.StringVar(&listenAddr, "listen", "", "Listen address (overrides server.listen_addr)")
	if err := set.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(false); err != nil {
		set.Usage()
		return err
	}

	watcher, err := config.NewWatcher(cf.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer watcher.Close()

	cfg := watcher.Current()
	if err := setupLogger(cfg); err != nil {
		return err
	}
	defer closeLogger()
	defer securemem.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if listenAddr == "" {
		listenAddr = cfg.Server.ListenAddr
	}

	a, srv, err := newServeApp(ctx, cfg, cf, listenAddr)
	if err != nil {
		return err
	}

	watcher.Subscribe(func(next *config.Config) {
		a.orch.UpdateSettings(orchestrator.SettingsFromConfig(next))
		logger.Global().SetLevel(logger.ParseLevel(next.LogLevel))
		if next.Provider != cfg.Provider || next.Model != cfg.Model {
			logger.Warn("provider or model changed to %s/%s, restart to switch the completion source", next.Provider, next.Model)
		}
	})

	detach := a.orch.Attach(ctx)
	defer detach()

	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Serving %s at %s\n", a.doc.Path(), srv.GetURL())

	<-ctx.Done()
	logger.Info("shutting down")
	if err := srv.Stop(); err != nil {
		return err
	}
	if err := a.doc.Save(context.Background()); err != nil {
		return fmt.Errorf("failed to save canvas: %w", err)
	}
	return nil
}

// newServeApp wires the web server and the orchestrator to each other: the
// server reports states from the orchestrator and controls its runs.
func newServeApp(ctx context.Context, cfg *config.Config, cf *commonFlags, listenAddr string) (*app, *web.Server, error) {
	var srv *web.Server
	observer := func(tr orchestrator.Transition) {
		if srv != nil {
			srv.Broker().Observe(tr)
		}
	}

	a, err := newApp(ctx, cfg, cf, orchestrator.WithStateObserver(observer))
	if err != nil {
		return nil, nil, err
	}
	srv, err = web.NewServer(listenAddr, a.doc.Store())
	if err != nil {
		return nil, nil, err
	}
	srv.SetRunner(a.orch)
	return a, srv, nil
}

func runWindow(args []string) error {
	set, cf := newFlagSet("window", true)
	if err := set.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(true); err != nil {
		set.Usage()
		return err
	}

	cfg, err := loadConfig(cf.configPath)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}
	defer closeLogger()
	securemem.Init()
	defer securemem.Purge()

	ctx := context.Background()
	a, err := newApp(ctx, cfg, cf)
	if err != nil {
		return err
	}

	req, err := a.orch.Window(ctx, cf.nodeID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrBusy) {
			return fmt.Errorf("node %s is busy", cf.nodeID)
		}
		return err
	}
	writeWindow(os.Stdout, req, a.orch.CountTokens(req.Messages))
	return nil
}

func writeWindow(w io.Writer, req *llm.Request, tokens int) {
	for i := range req.Messages {
		msg := &req.Messages[i]
		header := string(msg.Role)
		if msg.Name != "" {
			header += " (" + msg.Name + ")"
		}
		if msg.ToolCallID != "" {
			header += " [" + msg.ToolCallID + "]"
		}
		fmt.Fprintf(w, "--- %d: %s\n", i, header)
		fmt.Fprintln(w, strings.TrimRight(msg.Text(), "\n"))
		if images := msg.Images(); len(images) > 0 {
			fmt.Fprintf(w, "(%d image(s))\n", len(images))
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(w, "-> %s(%s)\n", call.Function.Name, call.Function.Arguments)
		}
	}

	names := make([]string, 0, len(req.Tools))
	for _, tool := range req.Tools {
		names = append(names, tool.Name)
	}
	fmt.Fprintf(w, "---\n%d messages, %d tokens", len(req.Messages), tokens)
	if len(names) > 0 {
		fmt.Fprintf(w, ", tools: %s", strings.Join(names, ", "))
	}
	fmt.Fprintln(w)
}
