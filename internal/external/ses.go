package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"golang.org/x/sync/errgroup"

	"noticebox/internal/types"
)

// SESAPI defines the subset of the SES v2 client used by SESBackend.
// Extracted for testability — tests can provide a mock implementation.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESBackendConfig holds the configuration for creating an SESBackend.
type SESBackendConfig struct {
	// ConfigSetName is the SES configuration set name for delivery tracking.
	// Optional; if empty, no configuration set is used. A per-call
	// "configuration_set" backend option overrides it.
	ConfigSetName string

	// Concurrency bounds how many SendEmail calls run in parallel within
	// one batch. Values below 1 mean sequential sending.
	Concurrency int

	// Logger for SES operations.
	Logger *slog.Logger
}

// SESBackend implements MailBackend using AWS SES v2. Authentication is
// handled via IAM roles (no API key required), and the AWS SDK provides
// built-in retry logic, so no BaseClient wrapper is needed.
type SESBackend struct {
	api           SESAPI
	configSetName string
	concurrency   int
	logger        *slog.Logger
}

// NewSESBackend creates a new SESBackend from an AWS config.
func NewSESBackend(awsCfg aws.Config, cfg SESBackendConfig) *SESBackend {
	return newSESBackend(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESBackendWithAPI creates an SESBackend with a pre-configured SESAPI.
// Useful for testing with a mock SES interface.
func NewSESBackendWithAPI(api SESAPI, cfg SESBackendConfig) *SESBackend {
	return newSESBackend(api, cfg)
}

func newSESBackend(api SESAPI, cfg SESBackendConfig) *SESBackend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &SESBackend{
		api:           api,
		configSetName: cfg.ConfigSetName,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Name returns the backend identifier.
func (b *SESBackend) Name() string { return "ses" }

// Open returns a connection bound to the per-call options. SES is a
// stateless HTTP API; "opening" only resolves the effective configuration
// set, it performs no network I/O.
func (b *SESBackend) Open(_ context.Context, opts BackendOptions) (MailConnection, error) {
	configSet := b.configSetName
	if v, ok := opts.Options["configuration_set"].(string); ok && v != "" {
		configSet = v
	}
	return &sesConnection{backend: b, configSet: configSet}, nil
}

// sesConnection submits one SendEmail call per message, bounded by the
// backend's concurrency limit.
type sesConnection struct {
	backend   *SESBackend
	configSet string
}

// SendBatch sends every message and returns how many SES accepted. On
// error the count reflects the successful sends; the first error observed
// is returned after all in-flight sends settle.
func (c *sesConnection) SendBatch(ctx context.Context, messages []types.MailMessage) (int, error) {
	var sent atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.backend.concurrency)

	for _, msg := range messages {
		msg := msg
		g.Go(func() error {
			if err := c.sendOne(ctx, msg); err != nil {
				return err
			}
			sent.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(sent.Load()), err
}

func (c *sesConnection) sendOne(ctx context.Context, msg types.MailMessage) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.String()),
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{
					Text: &sestypes.Content{
						Data:    aws.String(msg.Body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if c.configSet != "" {
		input.ConfigurationSetName = aws.String(c.configSet)
	}

	// Tag the message with the notice ID for correlation.
	if msg.ReferenceID != "" {
		input.EmailTags = []sestypes.MessageTag{
			{
				Name:  aws.String("ReferenceID"),
				Value: aws.String(msg.ReferenceID),
			},
		}
	}

	result, err := c.backend.api.SendEmail(ctx, input)
	if err != nil {
		return mapSESError(err)
	}

	if result.MessageId != nil {
		c.backend.logger.DebugContext(ctx, "ses accepted message",
			"message_id", *result.MessageId,
			"to", msg.To,
		)
	}
	return nil
}

// mapSESError translates AWS SES errors into domain AppErrors.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("SES rejected message: %v", err),
			err,
		)
	}

	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("SES rate limit exceeded: %v", err),
			err,
		)
	}

	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(
			types.ErrCodeUpstreamMailProvider,
			fmt.Sprintf("SES account sending paused: %v", err),
			err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamMailProvider,
		fmt.Sprintf("SES error: %v", err),
		err,
	)
}

// Compile-time assertion that SESBackend satisfies MailBackend.
var _ MailBackend = (*SESBackend)(nil)
