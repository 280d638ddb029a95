package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mpkai/internal/citation"
	"mpkai/internal/config"
	"mpkai/internal/domain"
	"mpkai/internal/logger"
	"mpkai/internal/session"
	"mpkai/internal/telemetry"
	"mpkai/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var (
		cfgPath string
		langArg string
		askArg  string
		reindex bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/mpkai/config.yaml if not provided)")
	flag.StringVar(&langArg, "lang", "", "Answer language: id or en (defaults to language.default)")
	flag.StringVar(&askArg, "ask", "", "Ask one question, stream the answer to stdout and exit")
	flag.BoolVar(&reindex, "reindex", false, "Ignore any persisted index and embed the corpus again")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	lang := cfg.DefaultLanguage()
	if langArg != "" {
		if lang, err = domain.ParseLanguage(langArg); err != nil {
			log.Printf("invalid -lang: %v", err)
			return 1
		}
	}

	interactive := askArg == ""
	if interactive && cfg.Logging.File == "" {
		// the shell owns the terminal
		cfg.Logging.File = "mpkai.log"
	}
	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry, zl)
	if err != nil {
		zl.Error("failed to init tracing", zap.Error(err))
		return 1
	}
	defer shutdown()

	app, err := assemble(ctx, cfg, reindex, zl)
	if err != nil {
		zl.Error("failed to assemble pipeline", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer app.close()

	if !interactive {
		return askOnce(ctx, app, askArg, lang)
	}

	m := tui.New(app.service, session.NewHistory(), tui.Options{
		Language:     lang,
		Name:         cfg.Persona.Name,
		ExportDir:    cfg.Session.ExportDir,
		ExportFormat: cfg.Session.ExportFormat,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		zl.Error("shell exited", zap.Error(err))
		return 1
	}
	return 0
}

// askOnce streams one answer to stdout and returns the process exit code.
func askOnce(ctx context.Context, app *application, question string, lang domain.Language) int {
	a, err := app.service.Ask(ctx, question, lang, func(f string) { fmt.Print(f) })
	switch a.Outcome {
	case domain.Answered:
		fmt.Print(citation.Block(a.Citations, a.Language))
		fmt.Println()
	default:
		fmt.Println(a.Text)
	}
	if err != nil {
		return 1
	}
	return 0
}
