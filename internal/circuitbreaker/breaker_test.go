package circuitbreaker

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAndRecovers(t *testing.T) {
	b := New(Settings{Name: "test", ConsecutiveFailures: 2, OpenTimeout: 50 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	boom := errors.New("broker down")

	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, "closed", b.State())
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	require.Eventually(t, func() bool { return b.State() == "half-open" }, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Settings{Name: "test", ConsecutiveFailures: 2}, nil)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return boom })
	assert.Equal(t, "closed", b.State())
}
