package statscache

import (
	"context"
	"database/sql"
	"math"

	crdberrors "github.com/cockroachdb/errors"
	"github.com/lib/pq"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
)

const (
	pgClassQuery = `SELECT c.reltuples
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2`

	pgStatsQuery = `SELECT attname, null_frac, avg_width, n_distinct, histogram_bounds::text[]
FROM pg_stats
WHERE schemaname = $1 AND tablename = $2`
)

// LoadFromPostgres builds a snapshot from the planner statistics of a
// PostgreSQL database. Every table of database in cat is looked up in the
// given schema; tables PostgreSQL has never analyzed are skipped.
func LoadFromPostgres(ctx context.Context, db *sql.DB, cat catalog.Catalog, database, schema string) (*Snapshot, error) {
	tables, err := cat.ListTables(database)
	if err != nil {
		return nil, crdberrors.Wrapf(err, "listing tables of %q", database)
	}

	snap := &Snapshot{}
	for _, table := range tables {
		ts, err := loadPostgresTable(ctx, db, table, schema)
		if err != nil {
			return nil, errors.StatisticsLoadError(table.QualifiedName(), err)
		}
		if ts != nil {
			snap.Tables = append(snap.Tables, *ts)
		}
	}
	return snap, nil
}

func loadPostgresTable(ctx context.Context, db *sql.DB, table *catalog.Table, schema string) (*TableSnapshot, error) {
	var reltuples float64
	err := db.QueryRowContext(ctx, pgClassQuery, schema, table.TableName).Scan(&reltuples)
	if crdberrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// reltuples is -1 for tables that were never vacuumed or analyzed.
	if reltuples < 0 {
		return nil, nil
	}

	ts := &TableSnapshot{
		Database: table.Database,
		Table:    table.TableName,
		RowCount: &reltuples,
	}

	rows, err := db.QueryContext(ctx, pgStatsQuery, schema, table.TableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name      string
			nullFrac  float64
			avgWidth  float64
			nDistinct float64
			bounds    pq.StringArray
		)
		if err := rows.Scan(&name, &nullFrac, &avgWidth, &nDistinct, &bounds); err != nil {
			return nil, err
		}
		col := table.Column(name)
		if col == nil {
			continue
		}
		ts.Columns = append(ts.Columns, pgColumnSnapshot(col.DataType, name, reltuples, nullFrac, avgWidth, nDistinct, bounds))
	}
	return ts, rows.Err()
}

// pgColumnSnapshot converts one pg_stats row. A negative n_distinct is a
// fraction of the row count. histogram_bounds split the non-null rows into
// buckets of equal height.
func pgColumnSnapshot(typ types.DataType, name string, rowCount, nullFrac, avgWidth, nDistinct float64, bounds []string) ColumnSnapshot {
	ndv := nDistinct
	if ndv < 0 {
		ndv = -ndv * rowCount
	}
	nulls := nullFrac * rowCount
	count := rowCount
	cs := ColumnSnapshot{
		Name:    name,
		NDV:     math.Round(ndv),
		Nulls:   nulls,
		AvgSize: avgWidth,
		Count:   &count,
	}
	if len(bounds) > 0 {
		cs.Min = bounds[0]
		cs.Max = bounds[len(bounds)-1]
	}
	if len(bounds) > 1 {
		cs.Histogram = pgHistogram(typ, bounds, rowCount-nulls, cs.NDV)
	}
	return cs
}

func pgHistogram(typ types.DataType, bounds []string, nonNullRows, ndv float64) []stats.Bucket {
	values := make([]float64, len(bounds))
	for i, b := range bounds {
		f, err := types.LiteralToDouble(typ, types.NewValue(b))
		if err != nil {
			return nil
		}
		values[i] = f
	}
	n := float64(len(bounds) - 1)
	buckets := make([]stats.Bucket, 0, len(bounds)-1)
	for i := 1; i < len(values); i++ {
		buckets = append(buckets, stats.Bucket{
			Lower: values[i-1],
			Upper: values[i],
			Count: nonNullRows / n,
			NDV:   math.Max(1, ndv/n),
		})
	}
	return buckets
}
