package inspector

import (
	"context"
	"testing"

	"otdebug-mcp-server/internal/config"
)

func TestManagerLifetimeOutlivesCallerContext(t *testing.T) {
	m := NewManager(config.BrowserConfig{})

	// MCP transports cancel the tool-call context as soon as the handler
	// returns; the browser connection and event stream must not die with it.
	callCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = m.Acquire(callCtx, nil)

	select {
	case <-m.lifeCtx.Done():
		t.Fatal("manager lifetime followed a cancelled tool-call context")
	default:
	}
}

func TestShutdownCancelsManagerLifetime(t *testing.T) {
	m := NewManager(config.BrowserConfig{})

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-m.lifeCtx.Done():
	default:
		t.Fatal("Shutdown must cancel the manager lifetime")
	}
}

func TestReleaseWithoutPageIsANoOp(t *testing.T) {
	m := NewManager(config.BrowserConfig{})

	if err := m.Release(context.Background()); err != nil {
		t.Fatalf("Release on idle manager: %v", err)
	}

	select {
	case <-m.lifeCtx.Done():
		t.Fatal("Release must keep the manager lifetime alive for reacquisition")
	default:
	}
}
