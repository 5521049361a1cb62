package llm

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const (
	// OrchestratorService is the fully-qualified gRPC service name
	OrchestratorService = "lexiq.orchestrator.v1.CognitiveOrchestrator"

	generateMethod = "/" + OrchestratorService + "/Generate"
)

// ErrMissingOutput is returned when the orchestrator reply has no output field
var ErrMissingOutput = errors.New("orchestrator response missing output")

// OrchestratorGenerator replies through the Cognitive Orchestrator's
// unary Generate method. Requests and responses are google.protobuf.Struct
// messages carrying {input} and {output}.
type OrchestratorGenerator struct {
	conn   *grpc.ClientConn
	target string
	policy *resilience.Policy
	logger zerolog.Logger
}

// NewOrchestratorGenerator creates a client for the orchestrator at
// cfg.OrchestratorURL. The connection is established lazily.
func NewOrchestratorGenerator(cfg *config.Config, policy *resilience.Policy, logger zerolog.Logger, extra ...grpc.DialOption) (*OrchestratorGenerator, error) {
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if cfg.OrchestratorTLSEnabled {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(cfg.OrchestratorURL, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator client for %s: %w", cfg.OrchestratorURL, err)
	}

	return &OrchestratorGenerator{
		conn:   conn,
		target: cfg.OrchestratorURL,
		policy: policy,
		logger: logger.With().Str("component", "llm").Str("provider", "orchestrator").Logger(),
	}, nil
}

// Generate invokes the orchestrator with {input} and returns {output}
func (o *OrchestratorGenerator) Generate(ctx context.Context, input string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"input": inputOrFallback(input)})
	if err != nil {
		return "", fmt.Errorf("failed to build orchestrator request: %w", err)
	}

	var output string
	err = o.policy.Do(ctx, func(ctx context.Context) error {
		resp := &structpb.Struct{}
		if err := o.conn.Invoke(ctx, generateMethod, req, resp); err != nil {
			return classifyRPCError(err)
		}
		field, ok := resp.GetFields()["output"]
		if !ok {
			return ErrMissingOutput
		}
		output = field.GetStringValue()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator generate: %w", err)
	}

	o.logger.Debug().Int("chars", len(output)).Msg("Generated reply")
	return output, nil
}

// HealthCheck asks the orchestrator's standard gRPC health service
func (o *OrchestratorGenerator) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(o.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: OrchestratorService})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// WaitReady blocks until the orchestrator reports serving or the
// reconnect budget is exhausted
func (o *OrchestratorGenerator) WaitReady(ctx context.Context, cfg *resilience.ReconnectConfig) error {
	return resilience.Reconnect(ctx, o.logger, func(ctx context.Context) error {
		o.conn.Connect()
		healthy, err := o.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("orchestrator at %s not serving", o.target)
		}
		return nil
	}, cfg)
}

// Close closes the gRPC connection
func (o *OrchestratorGenerator) Close() error {
	return o.conn.Close()
}

// classifyRPCError marks transient gRPC failures as retryable
func classifyRPCError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return resilience.NewRetryableError(err)
	}
	return err
}
