package archive

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/config"
)

// RowError reports a single row the sink could not write. The rest of the
// batch is unaffected.
type RowError struct {
	Row Row
	Err error
}

// Sink writes archive rows to a warehouse backend. Insert returns per-row
// failures separately from a whole-batch error so the buffer can log and
// drop bad rows without retrying the batch.
type Sink interface {
	Insert(ctx context.Context, rows []Row) ([]RowError, error)
	Close() error
}

// OpenSink creates the sink named by cfg.Driver.
func OpenSink(ctx context.Context, cfg config.ArchiveConfig) (Sink, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresSink(ctx, cfg.DatabaseURL, cfg.Table)
	case "sqlite":
		return NewSQLiteSink(cfg.DatabaseURL, cfg.Table)
	default:
		return nil, eris.Errorf("archive: unknown driver %q (want postgres or sqlite)", cfg.Driver)
	}
}
