package statscache

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/errors"
)

func TestLoadFromPostgres(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	cat := newSalesCatalog(t)

	// items was never analyzed.
	mock.ExpectQuery(pgClassQuery).WithArgs("public", "items").
		WillReturnRows(sqlmock.NewRows([]string{"reltuples"}))

	mock.ExpectQuery(pgClassQuery).WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"reltuples"}).AddRow(1000.0))
	mock.ExpectQuery(pgStatsQuery).WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"attname", "null_frac", "avg_width", "n_distinct", "histogram_bounds"}).
			AddRow("id", 0.0, 8.0, -1.0, "{1,500,1000}").
			AddRow("dt", 0.1, 4.0, 30.0, nil).
			AddRow("dropped_col", 0.0, 4.0, 1.0, nil))

	snap, err := LoadFromPostgres(context.Background(), db, cat, "sales", "public")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, snap.Tables, 1)
	ts := snap.Tables[0]
	assert.Equal(t, "orders", ts.Table)
	assert.Equal(t, 1000.0, *ts.RowCount)
	require.Len(t, ts.Columns, 2)

	id := ts.Columns[0]
	assert.Equal(t, 1000.0, id.NDV)
	assert.Equal(t, "1", id.Min)
	assert.Equal(t, "1000", id.Max)
	require.Len(t, id.Histogram, 2)
	assert.Equal(t, 500.0, id.Histogram[0].Count)
	assert.Equal(t, 500.0, id.Histogram[1].Lower)

	dt := ts.Columns[1]
	assert.Equal(t, 30.0, dt.NDV)
	assert.InDelta(t, 100.0, dt.Nulls, 1e-9)
	assert.Nil(t, dt.Min)
	assert.Empty(t, dt.Histogram)

	// The snapshot applies cleanly to a cache.
	c := New(Options{})
	require.NoError(t, snap.Apply(c, cat))
}

func TestLoadFromPostgresError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(pgClassQuery).WithArgs("public", "items").WillReturnError(assert.AnError)

	_, err = LoadFromPostgres(context.Background(), db, newSalesCatalog(t), "sales", "public")
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, errors.IsError(err, errors.IOError))
}
