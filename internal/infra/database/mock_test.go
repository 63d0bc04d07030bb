package database

import (
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"ajo_ledger/internal/infra/logger"
)

// newMockDB returns a sqlmock-backed pool and a TxRunner that retries once with a short backoff.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *TxRunner) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	tx := NewTxRunner(db, 2, logger.Discard())
	tx.backoff = time.Millisecond
	return db, mock, tx
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

// sqlText matches a literal fragment of a statement.
func sqlText(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// columnsOf turns a select list such as paymentColumns into result column names.
func columnsOf(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		out = append(out, strings.TrimPrefix(p, "p."))
	}
	return out
}

var mockNow = time.Date(2025, time.February, 2, 10, 0, 0, 0, time.UTC)

func paymentRow(id int64, status string) *sqlmock.Rows {
	due := time.Date(2025, time.January, 28, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(columnsOf(paymentColumns)).AddRow(
		id, int64(11), int64(4), int64(3), int64(1), "50000", due, status,
		mockNow, "50000", false, "0", false, nil, nil,
		nil, nil, nil, mockNow, mockNow,
	)
}

func payoutRow(id int64, status string) *sqlmock.Rows {
	scheduled := time.Date(2025, time.May, 28, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(columnsOf(payoutColumns)).AddRow(
		id, int64(11), int64(4), int64(3), "500000", int64(5), scheduled, status,
		mockNow, "TRF-1", int64(1), nil, mockNow, mockNow,
	)
}
