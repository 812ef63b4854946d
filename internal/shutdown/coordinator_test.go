package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachineIsMonotonic(t *testing.T) {
	c := NewCoordinator()
	require.Equal(t, Running, c.State())
	require.True(t, c.ShouldContinue())

	c.RequestShutdown()
	require.Equal(t, ShuttingDown, c.State())
	require.False(t, c.ShouldContinue())

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed after first request")
	}
	select {
	case <-c.Forced():
		t.Fatal("forced channel must not be closed after first request")
	default:
	}

	c.RequestShutdown()
	require.Equal(t, Terminated, c.State())
	select {
	case <-c.Forced():
	default:
		t.Fatal("forced channel should be closed after second request")
	}

	// further requests are no-ops
	c.RequestShutdown()
	require.Equal(t, Terminated, c.State())
}

func TestCleanupsRunLIFO(t *testing.T) {
	c := NewCoordinator()

	var order []string
	c.OnCleanup("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	c.OnCleanup("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})
	c.OnCleanup("third", func(context.Context) error {
		order = append(order, "third")
		return nil
	})

	c.RequestShutdown()
	c.RunCleanups(context.Background())

	require.Equal(t, []string{"third", "second", "first"}, order)
	require.Equal(t, Terminated, c.State())
}

func TestCleanupFailureDoesNotStopOthers(t *testing.T) {
	c := NewCoordinator()

	ran := false
	c.OnCleanup("persist", func(context.Context) error {
		ran = true
		return nil
	})
	c.OnCleanup("close-session", func(context.Context) error {
		return errors.New("browser already gone")
	})

	c.RunCleanups(context.Background())
	require.True(t, ran)
	require.Equal(t, Terminated, c.State())
}

func TestRunCleanupsWithoutRequestStillTerminates(t *testing.T) {
	c := NewCoordinator()
	c.RunCleanups(context.Background())
	require.Equal(t, Terminated, c.State())

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed once terminated")
	}
}
