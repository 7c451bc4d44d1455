package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrderby/contest-hub/pkg/logger"
)

type ping struct {
	N int `json:"n"`
}

func startBus(t *testing.T, cfg Config, register func(*Bus)) *Bus {
	t.Helper()
	bus, err := NewBus(cfg, logger.Discard())
	require.NoError(t, err)
	register(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = bus.Close()
		<-done
	})

	select {
	case <-bus.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("bus did not start")
	}
	return bus
}

func TestBus_PublishDeliversJSON(t *testing.T) {
	got := make(chan ping, 1)
	bus := startBus(t, DefaultConfig(), func(b *Bus) {
		b.Handle("ping_handler", "test.ping", func(msg *message.Message) error {
			var p ping
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return err
			}
			got <- p
			return nil
		})
	})

	require.NoError(t, bus.Publish(context.Background(), "test.ping", ping{N: 7}))

	select {
	case p := <-got:
		assert.Equal(t, 7, p.N)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBus_RetriesFailingHandler(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})
	cfg := DefaultConfig()
	cfg.InitialInterval = time.Millisecond

	bus := startBus(t, cfg, func(b *Bus) {
		b.Handle("flaky", "test.flaky", func(*message.Message) error {
			if attempts.Add(1) < 3 {
				return errors.New("store unavailable")
			}
			close(done)
			return nil
		})
	})

	require.NoError(t, bus.Publish(context.Background(), "test.flaky", ping{}))

	select {
	case <-done:
		assert.Equal(t, int32(3), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("handler never succeeded")
	}
}

func TestBus_PublishRejectsUnmarshalable(t *testing.T) {
	bus, err := NewBus(DefaultConfig(), logger.Discard())
	require.NoError(t, err)
	defer bus.Close()

	err = bus.Publish(context.Background(), "test.bad", make(chan int))
	require.Error(t, err)
}

func TestNewBus_Drivers(t *testing.T) {
	_, err := NewBus(Config{Driver: "kafka"}, logger.Discard())
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = NewBus(Config{Driver: DriverNATS}, logger.Discard())
	require.Error(t, err)
}
