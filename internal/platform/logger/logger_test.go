package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "WARN", want: slog.LevelWarn},
		{input: "verbose", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSetup(t *testing.T) {
	log, err := Setup("debug")
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))

	_, err = Setup("bogus")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	t.Run("returns stored logger", func(t *testing.T) {
		t.Parallel()

		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx := WithLogger(context.Background(), log)
		assert.Same(t, log, FromContext(ctx))
	})

	t.Run("falls back to default", func(t *testing.T) {
		t.Parallel()

		assert.NotNil(t, FromContext(context.Background()))
	})
}
