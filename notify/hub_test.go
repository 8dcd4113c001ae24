package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	received := make(chan string, 1)
	_, err := hub.Subscribe("post:edit", func(payload string) {
		received <- payload
	})
	require.NoError(t, err)

	require.NoError(t, hub.Publish("post:edit", "42"))

	select {
	case payload := <-received:
		require.Equal(t, "42", payload)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for signal")
	}
}

func TestHubChannelIsolation(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var mu sync.Mutex
	var got []string
	_, err := hub.Subscribe("a", func(payload string) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, hub.Publish("b", "wrong-channel"))
	require.NoError(t, hub.Publish("a", "right-channel"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "right-channel"
	}, time.Second, 10*time.Millisecond)
}

func TestHubSlowSubscriberLosesNothing(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	total := defaultSignalBufferSize * 3
	var mu sync.Mutex
	got := 0
	_, err := hub.Subscribe("a", func(string) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		got++
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < total; i++ {
		require.NoError(t, hub.Publish("a", "x"))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == total
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	cancel, err := hub.Subscribe("a", func(string) {})
	require.NoError(t, err)

	cancel()
	cancel()

	// Publishing after cancel must not panic or deliver.
	require.NoError(t, hub.Publish("a", "after-cancel"))
}

func TestHubCloseDrains(t *testing.T) {
	hub := NewHub()

	handled := make(chan struct{}, defaultSignalBufferSize)
	_, err := hub.Subscribe("a", func(string) {
		handled <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, hub.Publish("a", "1"))
	require.NoError(t, hub.Close())

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("Close did not drain pending signals")
	}
}
