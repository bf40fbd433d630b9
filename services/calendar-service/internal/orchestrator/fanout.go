package orchestrator

import (
	"context"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type branch[T any] struct {
	conn  model.CalendarConnection
	value T
	err   error
}

// fanOut runs fn once per connection with bounded parallelism and a per-branch timeout.
// Branch failures are captured in the result and never cancel siblings. Results keep
// the order of conns.
func fanOut[T any](ctx context.Context, o *Orchestrator, op string, conns []model.CalendarConnection, fn func(ctx context.Context, conn model.CalendarConnection, client providers.Client) (T, error)) []branch[T] {
	results := make([]branch[T], len(conns))
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, conn := range conns {
		g.Go(func() error {
			results[i] = runBranch(ctx, o, op, conn, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runBranch[T any](ctx context.Context, o *Orchestrator, op string, conn model.CalendarConnection, fn func(ctx context.Context, conn model.CalendarConnection, client providers.Client) (T, error)) (res branch[T]) {
	res.conn = conn
	ctx, span := o.tracer.Start(ctx, op+".branch", trace.WithAttributes(
		attribute.String("connection.id", conn.ID),
		attribute.String("provider", string(conn.Provider)),
	))
	defer span.End()
	defer func() {
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
	}()

	client, err := o.open(conn)
	if err != nil {
		res.err = err
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()
	res.value, res.err = fn(ctx, conn, client)
	return res
}
