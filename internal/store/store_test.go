package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return AttachDB(db), mock
}

func TestIncr(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE _render_stats_total SET exports=exports+1 WHERE id=1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO _render_stats_daily(day, exports) VALUES(current_date, 1)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Incr(context.Background(), KindExport))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrUnknownKind(t *testing.T) {
	s, mock := newMock(t)
	assert.Error(t, s.Incr(context.Background(), Kind("visit")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTotals(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT renders, exports, uploads FROM _render_stats_total")).
		WillReturnRows(sqlmock.NewRows([]string{"renders", "exports", "uploads"}).AddRow(12, 3, 5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT renders, exports, uploads FROM _render_stats_daily")).
		WillReturnRows(sqlmock.NewRows([]string{"renders", "exports", "uploads"}))
	tot, err := s.GetTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Totals{Renders: 12, Exports: 3, Uploads: 5}, tot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneDaily(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM _render_stats_daily WHERE day < current_date - $1::int")).
		WithArgs(30).
		WillReturnResult(sqlmock.NewResult(0, 7))
	n, err := s.PruneDaily(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, err = s.PruneDaily(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
