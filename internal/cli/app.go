package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/catalog/tables"
	"github.com/JonMunkholm/campusetl/internal/clean"
	"github.com/JonMunkholm/campusetl/internal/config"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
	"github.com/JonMunkholm/campusetl/internal/rules"
	"github.com/JonMunkholm/campusetl/internal/sink"
	"github.com/JonMunkholm/campusetl/internal/validate"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	rules      *rules.Registry
	validators *validate.Registry
	registry   *catalog.Registry
}

// newApp builds the rule and validator registries and loads the catalog.
func newApp(cfg *config.Config) (*app, error) {
	ruleReg, err := rules.Builtin(rules.Options{
		Locale:            cfg.Pipeline.Locale,
		TwoDigitYearPivot: cfg.Pipeline.TwoDigitYearPivot,
	})
	if err != nil {
		return nil, fmt.Errorf("cleaning rules: %w", err)
	}
	validators := validate.Default()

	configs, err := loadTables(cfg.Pipeline.Catalog)
	if err != nil {
		return nil, err
	}
	registry, err := catalog.NewRegistry(catalog.Options{Rules: ruleReg, Validators: validators}, configs...)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     slog.Default(),
		rules:      ruleReg,
		validators: validators,
		registry:   registry,
	}, nil
}

// loadTables reads the catalog file, or returns the built-in tables.
func loadTables(path string) ([]catalog.TableConfig, error) {
	if path == "" {
		return tables.Defaults(), nil
	}
	return catalog.LoadFile(path)
}

func (a *app) openLedger(ctx context.Context) (ledger.Ledger, error) {
	l, err := ledger.Open(ctx, ledger.Config{
		Driver:          a.cfg.Ledger.Driver,
		DSN:             a.cfg.Ledger.DSN,
		MaxOpenConns:    a.cfg.Ledger.MaxOpenConns,
		MaxIdleConns:    a.cfg.Ledger.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Ledger.ConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}

// openSink returns nil when no sink driver is configured.
func (a *app) openSink(ctx context.Context) (sink.Sink, error) {
	s, err := sink.Open(ctx, a.cfg.Sink.Driver, sink.PostgresConfig{
		URL:      a.cfg.Sink.DatabaseURL,
		Schema:   a.cfg.Sink.Schema,
		MaxConns: a.cfg.Sink.MaxConns,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}
	return s, nil
}

func (a *app) deps(l ledger.Ledger, s sink.Sink) pipeline.Deps {
	return pipeline.Deps{
		Registry:   a.registry,
		Engine:     clean.NewEngine(a.rules, a.logger),
		Validators: a.validators,
		Ledger:     l,
		Sink:       s,
		Logger:     a.logger,
		SpillDir:   a.cfg.Pipeline.SpillDir,
		MaxIssues:  a.cfg.Pipeline.MaxIssues,
	}
}

func (a *app) guard() *pipeline.Guard {
	return pipeline.NewGuard(a.cfg.Pipeline.MaxConcurrentRuns, a.cfg.Pipeline.RunWaitTime)
}
