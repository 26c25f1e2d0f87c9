package event

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/stackos/service/messaging"
	"github.com/viant/stackos/service/messaging/fs"
)

func TestService_Vendors(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "event-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	testCases := []struct {
		description string
		vendor      messaging.Vendor
		options     []Option
		expectErr   bool
	}{
		{description: "memory", vendor: messaging.VendorMemory},
		{description: "fs", vendor: messaging.VendorFS, options: []Option{WithFsConfig(fs.Config{BasePath: tempDir, MaxRetries: 1})}},
		{description: "unknown", vendor: messaging.Vendor("kafka"), expectErr: true},
	}
	for _, testCase := range testCases {
		options := append(testCase.options, WithSession("boot-1"))
		srv, err := New(testCase.vendor, options...)
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		ctx := context.Background()
		published := NewEvent(TypeSpawned, &Context{PID: 1, Name: "shell", Tick: 3})
		require.NoError(t, srv.Publisher().Publish(ctx, published), testCase.description)
		assert.NotEmpty(t, published.ID, testCase.description)

		consumed, err := srv.Publisher().Consume(ctx)
		require.NoError(t, err, testCase.description)
		require.NotNil(t, consumed, testCase.description)
		assert.Equal(t, TypeSpawned, consumed.Type, testCase.description)
		assert.Equal(t, "boot-1", consumed.Session, testCase.description)
		assert.Equal(t, 1, consumed.Context.PID, testCase.description)
		assert.Equal(t, "shell", consumed.Context.Name, testCase.description)
	}
}

func TestService_Listener(t *testing.T) {
	srv, err := New(messaging.VendorMemory, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	received := make(chan *Event, 4)
	srv.SetListener(func(event *Event) error {
		received <- event
		return nil
	})
	defer srv.Close()

	require.NoError(t, srv.Publisher().Publish(context.Background(), NewEvent(TypeHalted, &Context{})))
	select {
	case event := <-received:
		assert.Equal(t, TypeHalted, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not receive the event")
	}
}

func TestService_ListenerRetriesFailedEvents(t *testing.T) {
	srv, err := New(messaging.VendorMemory, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	attempts := make(chan int, 8)
	count := 0
	srv.SetListener(func(event *Event) error {
		count++
		attempts <- count
		if count < 3 {
			return errors.New("handler not ready")
		}
		return nil
	})
	defer srv.Close()

	require.NoError(t, srv.Publisher().Publish(context.Background(), NewEvent(TypeExited, &Context{PID: 2})))
	for expect := 1; expect <= 3; expect++ {
		select {
		case attempt := <-attempts:
			assert.Equal(t, expect, attempt)
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d was not delivered", expect)
		}
	}
	select {
	case attempt := <-attempts:
		t.Fatalf("unexpected attempt %d after success", attempt)
	case <-time.After(50 * time.Millisecond):
	}
}
