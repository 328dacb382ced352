package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type queryTracer struct {
	observer Observer
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

type traceKey struct{}

type traceStart struct {
	at        time.Time
	operation string
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{at: time.Now(), operation: operationName(data.SQL)})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	t.observer.Observe(backend, st.operation, time.Since(st.at), data.Err)
}

// operationName reduces a statement to "verb_table" to keep label
// cardinality bounded.
func operationName(sql string) string {
	fields := strings.Fields(strings.ToLower(sql))
	if len(fields) == 0 {
		return "unknown"
	}
	verb := fields[0]

	var table string
	if verb == "update" && len(fields) > 1 {
		table = fields[1]
	} else {
		for i := 1; i < len(fields)-1; i++ {
			if fields[i] == "from" || fields[i] == "into" {
				table = fields[i+1]
				break
			}
		}
	}
	table = strings.Trim(table, `"(;`)
	if table == "" {
		return verb
	}
	return verb + "_" + table
}
