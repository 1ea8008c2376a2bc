// Package testutil provides small fixture builders shared by this
// repository's tests, mirroring the pattern in tests/help.
package testutil

import (
	"log/slog"
	"os"

	"github.com/spillmod/spilltier/config"
)

// Config returns a valid, normalized Config rooted at dir, suitable as a
// starting point for tests that only care about overriding one field.
func Config(dir string) *config.Config {
	c := config.Default()
	c.Path = dir
	if err := c.Normalize(); err != nil {
		panic(err)
	}
	return c
}

// Logger returns a JSON slog.Logger writing to stdout, tagged with a
// service/env pair the way tests/help.Logger tags its test logger.
func Logger() *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("service", "spilltier"),
		slog.String("env", "test"),
	)
}
