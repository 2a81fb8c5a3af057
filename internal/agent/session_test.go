package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/toolbridge"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	resp *Response
	err  error
}

func (s *stubAdapter) Send(_ context.Context, _ *Request) (*Response, error) {
	return s.resp, s.err
}

type panicAdapter struct{}

func (p *panicAdapter) Send(_ context.Context, _ *Request) (*Response, error) {
	panic("exploded mid-request")
}

func testBridge(t *testing.T) *toolbridge.Bridge {
	t.Helper()
	b, err := toolbridge.Build(t.TempDir(), nil, nil)
	require.NoError(t, err)
	return b
}

func testCombination() models.Combination {
	return models.Combination{
		Suite: "js", Scenario: "demo", Tier: "terse",
		Backend: models.BackendAnthropic, Model: "claude-x",
	}
}

func TestSession_Run(t *testing.T) {
	adapter := &stubAdapter{resp: &Response{Content: "done", TokensIn: 10, TokensOut: 20}}
	s := NewSessionWithFactory(func(models.Backend) (Adapter, error) {
		return adapter, nil
	}, nil)

	result, err := s.Run(context.Background(), testCombination(), "/ws", "fix it", testBridge(t))
	require.NoError(t, err)
	require.Equal(t, "done", result.Content)
	require.Equal(t, 10, result.TokensIn)
	require.Equal(t, 20, result.TokensOut)
	require.GreaterOrEqual(t, result.Duration.Nanoseconds(), int64(0))
}

func TestSession_AdapterErrorContained(t *testing.T) {
	wantErr := errors.New("rate limited")
	s := NewSessionWithFactory(func(models.Backend) (Adapter, error) {
		return &stubAdapter{err: wantErr}, nil
	}, nil)

	_, err := s.Run(context.Background(), testCombination(), "/ws", "fix it", testBridge(t))
	require.ErrorIs(t, err, wantErr)
}

func TestSession_AdapterPanicContained(t *testing.T) {
	s := NewSessionWithFactory(func(models.Backend) (Adapter, error) {
		return &panicAdapter{}, nil
	}, nil)

	result, err := s.Run(context.Background(), testCombination(), "/ws", "fix it", testBridge(t))
	require.Nil(t, result)
	require.ErrorContains(t, err, "adapter panic")
	require.ErrorContains(t, err, "exploded mid-request")
}

func TestSession_FactoryError(t *testing.T) {
	s := NewSessionWithFactory(func(models.Backend) (Adapter, error) {
		return nil, errors.New("no credentials")
	}, nil)

	_, err := s.Run(context.Background(), testCombination(), "/ws", "fix it", testBridge(t))
	require.ErrorContains(t, err, "no credentials")
}

func TestNewAdapter_Echo(t *testing.T) {
	adapter, err := NewAdapter(models.BackendEcho)
	require.NoError(t, err)

	resp, err := adapter.Send(context.Background(), &Request{Prompt: "the prompt"})
	require.NoError(t, err)
	require.Equal(t, "the prompt", resp.Content)
	require.Empty(t, resp.ToolCalls)
	require.Zero(t, resp.CostUSD)
}

func TestNewAdapter_UnknownBackend(t *testing.T) {
	_, err := NewAdapter(models.Backend(99))
	require.ErrorContains(t, err, "no adapter for backend")
}

func TestSystemMessage(t *testing.T) {
	msg := systemMessage(testCombination(), "/tmp/ws", testBridge(t))
	require.Contains(t, msg, "Suite: js")
	require.Contains(t, msg, "Scenario: demo")
	require.Contains(t, msg, "/tmp/ws")
	require.Contains(t, msg, "read_file")
	require.Contains(t, msg, "run_command")
}
