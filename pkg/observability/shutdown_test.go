package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsInOrder(t *testing.T) {
	sm := NewShutdownManager(NewNopLogger(), time.Second)

	var order []string
	sm.RegisterShutdownFunc("drain", func(context.Context) error {
		order = append(order, "drain")
		return nil
	})
	sm.RegisterShutdownFunc("database", func(context.Context) error {
		order = append(order, "database")
		return nil
	})

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"drain", "database"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewNopLogger(), time.Second)
	sm.RegisterShutdownFunc("redis", func(context.Context) error { return errors.New("already closed") })
	ran := false
	sm.RegisterShutdownFunc("database", func(context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: already closed")
	assert.True(t, ran, "later functions still run after a failure")
}

func TestShutdownManager_WaitForShutdownOnContext(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NewNopLogger(), time.Second, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.WaitForShutdown(ctx))
}
