package cli

import (
	"context"
	"errors"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/export"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/logging"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/metrics"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/server"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/writer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath  string
	MetricsAddr string

	// Interactive sends logs to a file so they do not draw over the UI.
	Interactive bool
}

// Runtime is everything a conversation command needs, wired from config.
type Runtime struct {
	Config    *config.Config
	Log       *zap.Logger
	Engine    server.Engine
	Extractor *document.Extractor
	Writer    *writer.Writer
	Gatherer  prometheus.Gatherer

	closers []func() error
}

// Build resolves the configuration and wires the conversation stack.
func Build(opts Options) (*Runtime, error) {
	cfg, err := config.Resolve(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.Interactive && cfg.Log.File == "" {
		if cfg.Log.File, err = logging.DefaultFile(); err != nil {
			return nil, err
		}
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Log: log}
	rt.closers = append(rt.closers, func() error {
		_ = log.Sync()
		return nil
	})

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)
	rt.Gatherer = reg

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider,
		llm.WithModel(cfg.Model),
		llm.WithRetry(llm.RetryFromConfig(cfg.Retry)),
		llm.WithLogger(log.Named("llm")),
		llm.WithRecorder(recorder),
	)

	store, err := template.LoadStore(cfg.Templates.Observation, cfg.Templates.BusinessObjective)
	if err != nil {
		return nil, err
	}

	rt.Writer = writer.NewWriter(client, log.Named("writer"))
	rt.Extractor = document.NewExtractor(log.Named("document"))

	deps := pipeline.Deps{
		Generator:  client,
		Templates:  store,
		Summarizer: rt.Writer,
		Recorder:   recorder,
		Log:        log.Named("pipeline"),
	}

	sink, closeSink, err := export.NewSink(cfg)
	switch {
	case errors.Is(err, export.ErrNoSink):
		log.Info("export disabled")
	case err != nil:
		return nil, err
	default:
		rt.closers = append(rt.closers, closeSink)
		deps.Exporter = export.NewExporter(sink, cfg.Export.BatchSize, log.Named("export"), recorder)
	}

	rt.Engine = pipeline.NewDriver(deps, driverOptions(cfg.Intake))

	log.Info("runtime ready",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.Model),
		zap.String("export", cfg.Export.Sink))
	return rt, nil
}

func driverOptions(c config.IntakeConfig) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.MaxQuestions = c.MaxQuestions
	opts.MaxConflictRounds = c.MaxConflictRounds
	opts.StructuredAttempts = c.StructuredAttempts
	opts.SynthesisAttempts = c.SynthesisAttempts
	return opts
}

// ServeMetrics exposes the runtime's metrics until ctx is done. It does
// nothing when no address is configured.
func (r *Runtime) ServeMetrics(ctx context.Context) {
	if r.Config == nil || r.Config.MetricsAddr == "" || r.Gatherer == nil {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, r.Config.MetricsAddr, r.Gatherer, r.Log); err != nil {
			r.Log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// Close releases the runtime in reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}
