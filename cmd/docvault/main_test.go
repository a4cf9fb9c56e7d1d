package main

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupLogLevel(t *testing.T) {
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app := &cli.App{
		Name: "docvault",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Before: setup,
		Action: func(c *cli.Context) error { return nil },
	}

	t.Run("accepts valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
			err := app.Run([]string{"docvault", "--log-level", level})
			assert.NoError(t, err, level)
		}
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		err := app.Run([]string{"docvault", "--log-level", "verbose"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", excerpt("short  text", 200))
	assert.Equal(t, "one two three", excerpt("one\ntwo\n\nthree", 200))

	long := strings.Repeat("x", 300)
	out := excerpt(long, 200)
	assert.Len(t, out, 203)
	assert.True(t, strings.HasSuffix(out, "..."))
}
