package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyClientCachesOnlySuccess(t *testing.T) {
	builds := 0
	fail := true
	client := newLazyClient(func() (string, error) {
		builds++
		if fail {
			return "", ErrConfigurationMissing
		}
		return "client", nil
	})

	_, err := client.Get()
	require.ErrorIs(t, err, ErrConfigurationMissing)

	fail = false
	v, err := client.Get()
	require.NoError(t, err)
	assert.Equal(t, "client", v)

	v, err = client.Get()
	require.NoError(t, err)
	assert.Equal(t, "client", v)
	assert.Equal(t, 2, builds)
}

func TestCallWithTimeout(t *testing.T) {
	t.Run("returns result", func(t *testing.T) {
		v, err := callWithTimeout(context.Background(), time.Second, func() (int, error) { return 42, nil })
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("returns error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := callWithTimeout(context.Background(), time.Second, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("abandons slow call", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		_, err := callWithTimeout(context.Background(), 20*time.Millisecond, func() (int, error) {
			<-release
			return 1, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLazyTranscriberWithoutKey(t *testing.T) {
	store := newTestStore(nil, t.TempDir()+"/none")
	transcriber := NewLazyTranscriber(store, "whisper-1", time.Second)

	_, err := transcriber.Transcribe(context.Background(), "call.mp3", []byte("audio"))

	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestLazyCompleterWithoutKey(t *testing.T) {
	store := newTestStore(nil, t.TempDir()+"/none")
	completer := NewLazyCompleter(store, defaultSettings())

	_, err := completer.Complete(context.Background(), "system", "user")

	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.True(t, IsAuthError(err))
}
