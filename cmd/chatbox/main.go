// Command chatbox is a terminal chat client for Gemini, OpenAI, Anthropic
// and Ollama models.
//
// Usage:
//
//	GEMINI_API_KEY=... chatbox [flags]
//
// Flags:
//
//	-config string    Path to config.toml (default: user config dir)
//	-storage string   Storage backend: fs, sqlite, postgres, redis, firestore
//	-session string   ID of the session to open (default: most recent)
//	-provider string  Provider for the session: gemini, openai, anthropic, ollama
//	-model string     Model ID for the session
//	-list-models      Print the models of the provider and exit
//	-log string       Log file path
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/agent"
	bt "github.com/fwojciec/chatbox/bubbletea"
	"github.com/fwojciec/chatbox/config"
	"github.com/fwojciec/chatbox/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chatbox: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	storage    string
	sessionID  string
	provider   string
	model      string
	listModels bool
	logPath    string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("chatbox", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to config.toml (default: user config dir)")
	fs.StringVar(&o.storage, "storage", "", "Storage backend: fs, sqlite, postgres, redis, firestore")
	fs.StringVar(&o.sessionID, "session", "", "ID of the session to open (default: most recent)")
	fs.StringVar(&o.provider, "provider", "", "Provider for the session: gemini, openai, anthropic, ollama")
	fs.StringVar(&o.model, "model", "", "Model ID for the session")
	fs.BoolVar(&o.listModels, "list-models", false, "Print the models of the provider and exit")
	fs.StringVar(&o.logPath, "log", "", "Log file path")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.storage != "" {
		cfg.Storage.Backend = opts.storage
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if opts.logPath != "" {
		cfg.Log.File = opts.logPath
	}

	logger, closeLog, err := openLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	storage, closeStorage, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStorage()
	logger.InfoContext(ctx, "storage opened", "backend", cfg.Storage.Backend)

	base := cfg.Settings()
	settings := config.NewStore(storage, config.WithDefaults(base), config.WithLogger(logger))
	store := memory.New(memory.WithStorage(storage), memory.WithLogger(logger))
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("flush sessions", "error", err)
		}
	}()
	if err := store.Load(ctx); err != nil {
		return err
	}

	orch := agent.New(store, newRegistry(logger), settings, agent.WithLogger(logger))

	if opts.listModels {
		return listModels(ctx, orch, settings, chatbox.ProviderID(opts.provider), stdout)
	}

	sess, err := resolveSession(ctx, orch, store, opts.sessionID)
	if err != nil {
		return err
	}
	if opts.provider != "" || opts.model != "" {
		provider := chatbox.ProviderID(opts.provider)
		if provider == "" {
			provider = sess.Settings.Provider
		}
		model := opts.model
		if model == "" && provider == sess.Settings.Provider {
			model = sess.Settings.ModelID
		}
		if err := orch.SelectModel(sess.ID, provider, model); err != nil {
			return err
		}
	}

	m := bt.New(orch, store, sess.ID)
	if err := bt.Run(ctx, m); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

// resolveSession opens id, or the most recently updated chat session, or a
// new one.
func resolveSession(ctx context.Context, orch *agent.Orchestrator, store chatbox.SessionStore, id string) (chatbox.Session, error) {
	if id != "" {
		return store.Session(id)
	}
	for _, meta := range store.Sessions() {
		if meta.Type == chatbox.SessionTypeChat {
			return store.Session(meta.ID)
		}
	}
	return orch.NewSession(ctx, chatbox.SessionTypeChat, "")
}

func listModels(ctx context.Context, orch *agent.Orchestrator, settings chatbox.SettingsStore, id chatbox.ProviderID, w io.Writer) error {
	if id == "" {
		s, err := settings.Settings(ctx)
		if err != nil {
			return err
		}
		id = s.ChatSession.Provider
	}
	models, err := orch.ListModels(ctx, id)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Fprintln(w, m)
	}
	return nil
}

// openLogger writes JSON logs to the configured file. The terminal is owned
// by the UI, so an empty path discards logs.
func openLogger(cfg config.Log) (*slog.Logger, func(), error) {
	if cfg.File == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, chatbox.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { _ = f.Close() }, nil
}
