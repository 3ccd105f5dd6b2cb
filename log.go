package fastmssql

import (
	"context"

	"github.com/microsoft/go-mssqldb/msdsn"
)

// ContextLogger receives diagnostic messages from the pool and the execution
// engine. Categories reuse the msdsn log classification so a single logger
// can serve both this package and the underlying driver.
type ContextLogger interface {
	Log(ctx context.Context, category msdsn.Log, msg string)
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, msdsn.Log, string) {}

// logf writes to the logger when the category is enabled in flags.
func logf(ctx context.Context, logger ContextLogger, flags uint64, category msdsn.Log, msg string) {
	if flags&uint64(category) != 0 {
		logger.Log(ctx, category, msg)
	}
}
