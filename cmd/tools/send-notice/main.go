// Package main implements the send-notice CLI: it dispatches one notice to
// one or more recipients through the configured channels.
//
// Recipients are given with repeated -to flags in the form
// "userID[:email[:name]]". Channels are selected with -channels (comma
// separated: web, email). Literal -subject/-body override the preset
// templates for this send.
//
// Examples:
//
//	send-notice -to u1:ada@example.com:Ada -preset welcome
//	send-notice -to u1 -to u2 -channels web -subject "Maintenance tonight"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"noticebox/internal/config"
	"noticebox/internal/db"
	"noticebox/internal/external"
	"noticebox/internal/metrics"
	"noticebox/internal/notify"
	"noticebox/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info/Warn/Error directly but its With returns
// *slog.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// recipientList is a repeatable -to flag. Each value has the form
// "userID[:email[:name]]".
type recipientList []types.Recipient

func (l *recipientList) String() string {
	parts := make([]string, len(*l))
	for i, r := range *l {
		parts[i] = r.ID
	}
	return strings.Join(parts, ",")
}

func (l *recipientList) Set(value string) error {
	fields := strings.SplitN(value, ":", 3)
	if fields[0] == "" {
		return fmt.Errorf("recipient %q: user ID is required", value)
	}
	r := types.Recipient{ID: fields[0]}
	if len(fields) > 1 {
		r.Email = fields[1]
	}
	if len(fields) > 2 {
		r.Name = fields[2]
	}
	*l = append(*l, r)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var recipients recipientList
	var (
		preset       = flag.String("preset", "", "template preset (default: the configured default)")
		subject      = flag.String("subject", "", "literal subject override (skips subject template)")
		body         = flag.String("body", "", "literal body override (skips body template)")
		channels     = flag.String("channels", "web,email", "comma-separated delivery channels: web, email")
		backend      = flag.String("backend", "", "mail backend override (ses, sendgrid, memory)")
		failSilently = flag.Bool("fail-silently", false, "swallow mail transport failures for this send")
		collect      = flag.Bool("collect-errors", false, "run every channel even after a failure and report all errors")
		timeout      = flag.Duration("timeout", 30*time.Second, "overall dispatch deadline")
	)
	flag.Var(&recipients, "to", "recipient as userID[:email[:name]]; repeatable")
	flag.Parse()

	if len(recipients) == 0 {
		return fmt.Errorf("at least one -to recipient is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	logger := &slogAdapter{logger: slogger}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dispatcher, pool, err := buildDispatcher(ctx, cfg, slogger, *channels, *backend, *collect)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	msg := notify.Message{
		Preset:  *preset,
		Subject: *subject,
		Body:    *body,
	}
	if *failSilently {
		t := true
		msg.FailSilently = &t
	}

	if err := dispatcher.Dispatch(ctx, recipients, msg); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	logger.Info("notice dispatched",
		"recipients", len(recipients),
		"channels", *channels,
	)
	return nil
}

// buildDispatcher assembles the channel handlers for the requested channel
// list. The returned pool is non-nil when the web channel was wired and must
// be closed by the caller.
func buildDispatcher(
	ctx context.Context,
	cfg *config.Config,
	slogger *slog.Logger,
	channels string,
	backendOverride string,
	collect bool,
) (notify.Handler, interface{ Close() }, error) {
	logger := &slogAdapter{logger: slogger}

	renderer, err := newRenderer(cfg)
	if err != nil {
		return nil, nil, err
	}

	sink, err := newMetricsSink(ctx, cfg, slogger)
	if err != nil {
		return nil, nil, err
	}

	var handlers []notify.Handler
	var pool interface{ Close() }

	for _, channel := range strings.Split(channels, ",") {
		switch strings.TrimSpace(channel) {
		case "web":
			p, err := db.NewPool(ctx, cfg.Database)
			if err != nil {
				return nil, nil, fmt.Errorf("connecting database: %w", err)
			}
			pool = p
			handlers = append(handlers, notify.NewDatabaseHandler(notify.DatabaseHandlerConfig{
				Store:    db.NewNoticeRepository(p),
				Renderer: renderer,
				Preset:   cfg.Notify.DefaultPreset,
				Logger:   logger.With("channel", "web"),
				Metrics:  sink,
			}))

		case "email":
			backends, err := external.BuildBackends(ctx, cfg, slogger)
			if err != nil {
				return nil, nil, fmt.Errorf("initializing mail backends: %w", err)
			}
			backendName := cfg.Email.Backend
			if backendOverride != "" {
				backendName = backendOverride
			}
			handlers = append(handlers, notify.NewEmailHandler(notify.EmailHandlerConfig{
				Backends:     backends,
				Renderer:     renderer,
				Backend:      backendName,
				FailSilently: cfg.Email.FailSilently,
				From: types.SenderIdentity{
					Address: cfg.Email.FromAddress,
					Name:    cfg.Email.FromName,
				},
				Preset:  cfg.Notify.DefaultPreset,
				Logger:  logger.With("channel", "email"),
				Metrics: sink,
			}))

		default:
			return nil, nil, fmt.Errorf("unknown channel %q (want web or email)", channel)
		}
	}

	var opts []notify.MultiHandlerOption
	if collect {
		opts = append(opts, notify.WithCollectErrors(), notify.WithLogger(logger))
	}
	return notify.NewMultiHandler(handlers, opts...), pool, nil
}

// newRenderer builds the template renderer, honoring an on-disk template
// tree when one is configured.
func newRenderer(cfg *config.Config) (*notify.Renderer, error) {
	rc := notify.RendererConfig{}
	if dir := cfg.Notify.TemplateDir; dir != "" {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("template dir %q is not a readable directory", dir)
		}
		rc.FS = os.DirFS(dir)
	}
	return notify.NewRenderer(rc), nil
}

// newMetricsSink wires CloudWatch dispatch metrics when enabled, otherwise a
// no-op sink.
func newMetricsSink(ctx context.Context, cfg *config.Config, slogger *slog.Logger) (notify.Metrics, error) {
	if !cfg.Metrics.Enabled || cfg.Environment == "local" {
		return notify.NoopMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration for metrics: %w", err)
	}
	return metrics.NewCloudWatchSink(awsCfg, metrics.CloudWatchSinkConfig{
		Namespace: cfg.Metrics.Namespace,
		Logger:    slogger.With("component", "metrics"),
	}), nil
}
