package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/JonMunkholm/retail-etl/internal/config"
	"github.com/JonMunkholm/retail-etl/internal/load"
	"github.com/JonMunkholm/retail-etl/internal/replicate"
)

// Resources holds the open connections of a run.
type Resources struct {
	Pool  *pgxpool.Pool
	Mongo *mongo.Client
	Sinks Sinks
}

// Connect opens the relational pool and, when configured, the document store.
// withMongo=false skips the document store even if it is configured.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger, withMongo bool) (*Resources, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := load.Connect(connectCtx, cfg.Database.ConnString())
	if err != nil {
		return nil, err
	}
	res := &Resources{Pool: pool}
	res.Sinks.Load = load.NewPgSink(pool)
	res.Sinks.Query = pool

	if u, err := url.Parse(cfg.Database.ConnString()); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "host", u.Host)
	}

	if withMongo && cfg.Mongo.Enabled() {
		client, err := replicate.Connect(connectCtx, cfg.Mongo.ConnString())
		if err != nil {
			pool.Close()
			return nil, err
		}
		res.Mongo = client
		res.Sinks.Customers = client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		logger.Info("connected to document store", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
	}

	return res, nil
}

// Close releases every connection.
func (r *Resources) Close(ctx context.Context) {
	if r.Mongo != nil {
		_ = r.Mongo.Disconnect(ctx)
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}
