package sink

import (
	"context"
	"fmt"
	"log/slog"
)

// Open returns the sink for driver. An empty driver means DriverNone, which
// returns a nil Sink: the pipeline then validates without persisting.
func Open(ctx context.Context, driver string, cfg PostgresConfig, logger *slog.Logger) (Sink, error) {
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverPostgres:
		return NewPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown sink driver %q", driver)
	}
}
