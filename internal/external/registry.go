package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"noticebox/internal/config"
	"noticebox/internal/types"
)

// BackendRegistry resolves backend identifiers to MailBackend instances. It
// is the single point of access through which the email handler reaches a
// transport provider.
type BackendRegistry struct {
	backends map[string]MailBackend
}

// NewBackendRegistry creates a registry over the given backends, keyed by
// their Name().
func NewBackendRegistry(backends ...MailBackend) *BackendRegistry {
	r := &BackendRegistry{backends: make(map[string]MailBackend, len(backends))}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds a backend, replacing any previous backend with the same name.
func (r *BackendRegistry) Register(b MailBackend) {
	r.backends[b.Name()] = b
}

// Get resolves a backend by name.
func (r *BackendRegistry) Get(name string) (MailBackend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUnknownMailBackend,
			fmt.Sprintf("unknown mail backend %q", name),
			nil,
			map[string]any{"available": r.Names()},
		)
	}
	return b, nil
}

// Names returns the registered backend names, sorted.
func (r *BackendRegistry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildBackends initializes the mail backends available to the application.
//
// The memory backend is always registered so local tooling and tests can
// force it per call. In local mode it is the only backend; otherwise the
// provider named by cfg.Email.Backend is initialized with real credentials.
func BuildBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*BackendRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewBackendRegistry(NewMemoryBackend(logger.With("backend", "memory")))

	if cfg.Environment == "local" {
		logger.Info("initializing mail backends in STUB mode",
			"environment", cfg.Environment,
		)
		return registry, nil
	}

	switch cfg.Email.Backend {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Email.AWSRegion),
		)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to load AWS configuration for SES",
				err,
			)
		}
		registry.Register(NewSESBackend(awsCfg, SESBackendConfig{
			ConfigSetName: cfg.Email.SESConfigSet,
			Concurrency:   cfg.Email.BatchConcurrency,
			Logger:        logger.With("backend", "ses"),
		}))

	case "sendgrid":
		httpClient := &http.Client{Timeout: 10 * time.Second}
		registry.Register(NewSendGridBackend(httpClient, SendGridBackendConfig{
			APIKey: cfg.Email.SendGridKey.Unmask(),
			Logger: logger.With("backend", "sendgrid"),
		}))

	case "memory":
		// Already registered.

	default:
		// Config validation rejects other values before we get here.
		return nil, types.NewAppError(
			types.ErrCodeUnknownMailBackend,
			fmt.Sprintf("unsupported mail backend %q", cfg.Email.Backend),
			nil,
		)
	}

	logger.Info("initialized mail backends",
		"environment", cfg.Environment,
		"backends", registry.Names(),
	)
	return registry, nil
}

// Compile-time assertion that BackendRegistry satisfies BackendSource.
var _ BackendSource = (*BackendRegistry)(nil)
