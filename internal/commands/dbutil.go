package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dotcommander/yap/internal/app"
	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

// withStore opens the yap Database, a single Connection against it, and
// passes both to fn, closing the Connection and Database afterward
// regardless of fn's outcome.
func withStore(ctx context.Context, fn func(db *yap.Database, conn *yap.Connection) error) error {
	db, err := app.OpenStore(ctx)
	if err != nil {
		return cmdErr(err)
	}
	defer db.Close()

	conn, err := db.NewConnection(ctx)
	if err != nil {
		return cmdErr(err)
	}
	defer conn.Close(ctx)

	if err := fn(db, conn); err != nil {
		return cmdErr(err)
	}
	return nil
}

// cmdErr logs err, prints the JSON error envelope to stdout, and wraps err
// in printedError so Execute's top-level handler knows not to log or print
// it again. Idempotent against re-wrapping: a printedError passed back in
// (e.g. from withStore re-wrapping a callback's already-cmdErr'd return)
// is returned unchanged rather than logged or printed twice.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	var pe printedError
	if errors.As(err, &pe) {
		return pe
	}

	attrs := []any{"error", err.Error()}
	if ye, ok := err.(*yap.Error); ok {
		attrs = append(attrs, "code", ye.ErrorCode())
	}
	slog.Error("command error", attrs...)
	_ = output.PrintError(err)
	return printedError{err: err}
}
