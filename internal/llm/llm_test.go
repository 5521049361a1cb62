package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, reply string, seen *chatRequest) *config.Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   seen.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	return &config.Config{
		GroqAPIKey:          "test-key",
		GroqBaseURL:         srv.URL + "/",
		GroqChatModel:       "llama-3.3-70b-versatile",
		GroqTemperature:     1.0,
		SystemPrompt:        config.DefaultSystemPrompt,
		CollaboratorTimeout: 5,
	}
}

func TestGroqGenerator_Generate(t *testing.T) {
	var seen chatRequest
	cfg := chatServer(t, "It's sunny today.", &seen)

	gen := NewGroqGenerator(cfg, nil, zerolog.Nop())
	out, err := gen.Generate(context.Background(), "What's the weather like?")
	require.NoError(t, err)
	assert.Equal(t, "It's sunny today.", out)

	assert.Equal(t, "llama-3.3-70b-versatile", seen.Model)
	assert.Equal(t, 1.0, seen.Temperature)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, config.DefaultSystemPrompt, seen.Messages[0].Content)
	assert.Equal(t, "user", seen.Messages[1].Role)
	assert.Equal(t, "What's the weather like?", seen.Messages[1].Content)
}

func TestGroqGenerator_FallbackInput(t *testing.T) {
	var seen chatRequest
	cfg := chatServer(t, "Hi there!", &seen)

	gen := NewGroqGenerator(cfg, nil, zerolog.Nop())
	_, err := gen.Generate(context.Background(), "  ")
	require.NoError(t, err)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, FallbackInput, seen.Messages[1].Content)
}

func TestGroqGenerator_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{GroqAPIKey: "k", GroqBaseURL: srv.URL + "/", GroqChatModel: "m", CollaboratorTimeout: 5}
	_, err := NewGroqGenerator(cfg, nil, zerolog.Nop()).Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

// fakeOrchestrator serves Generate over an in-memory listener
type fakeOrchestrator struct {
	calls   atomic.Int32
	failN   int32
	output  *string
	lastReq *structpb.Struct
}

func (f *fakeOrchestrator) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	if method != generateMethod {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}

	req := &structpb.Struct{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	f.lastReq = req

	if f.calls.Add(1) <= f.failN {
		return status.Error(codes.Unavailable, "warming up")
	}

	fields := map[string]any{}
	if f.output != nil {
		fields["output"] = *f.output
	}
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	return stream.SendMsg(resp)
}

func startOrchestrator(t *testing.T, fake *fakeOrchestrator, serving bool) *OrchestratorGenerator {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.UnknownServiceHandler(fake.handle))
	hs := health.NewServer()
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(OrchestratorService, st)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg := &config.Config{OrchestratorURL: "passthrough:///bufnet"}
	gen, err := NewOrchestratorGenerator(cfg, nil, zerolog.Nop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gen.Close() })
	return gen
}

func TestOrchestratorGenerator_Generate(t *testing.T) {
	out := "Here's one: why did the gopher cross the road?"
	fake := &fakeOrchestrator{output: &out}
	gen := startOrchestrator(t, fake, true)

	reply, err := gen.Generate(context.Background(), "Tell me a joke.")
	require.NoError(t, err)
	assert.Equal(t, out, reply)
	assert.Equal(t, "Tell me a joke.", fake.lastReq.GetFields()["input"].GetStringValue())
}

func TestOrchestratorGenerator_RetriesUnavailable(t *testing.T) {
	out := "ok"
	fake := &fakeOrchestrator{output: &out, failN: 1}
	gen := startOrchestrator(t, fake, true)
	gen.policy = &resilience.Policy{
		Timeout: time.Second,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1,
		},
	}

	reply, err := gen.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestOrchestratorGenerator_MissingOutput(t *testing.T) {
	gen := startOrchestrator(t, &fakeOrchestrator{}, true)

	_, err := gen.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrMissingOutput)
}

func TestOrchestratorGenerator_HealthCheck(t *testing.T) {
	serving := startOrchestrator(t, &fakeOrchestrator{}, true)
	ok, err := serving.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	notServing := startOrchestrator(t, &fakeOrchestrator{}, false)
	ok, err = notServing.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	err = notServing.WaitReady(context.Background(), &resilience.ReconnectConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Multiplier:  1,
		MaxBackoff:  time.Millisecond,
	})
	assert.Error(t, err)

	assert.NoError(t, serving.WaitReady(context.Background(), nil))
}

func TestClassifyRPCError(t *testing.T) {
	assert.True(t, resilience.IsRetryable(classifyRPCError(status.Error(codes.Unavailable, "x"))))
	assert.False(t, resilience.IsRetryable(classifyRPCError(status.Error(codes.InvalidArgument, "x"))))

	plain := errors.New("boom")
	assert.Equal(t, plain, classifyRPCError(plain))
}
