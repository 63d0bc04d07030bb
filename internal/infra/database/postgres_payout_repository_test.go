package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/payout"
)

const (
	markPayoutPaid = `WHERE id = $1 AND status = $7 RETURNING`
	payoutByID     = `FROM payouts WHERE id = $1`
)

func processing(id int64) payout.Processing {
	return payout.Processing{
		PayoutID:          id,
		PaidAt:            mockNow,
		TransferReference: "TRF-1",
		ProcessedBy:       1,
		Notes:             sql.NullString{},
	}
}

func TestMarkPaidHappensOnce(t *testing.T) {
	t.Parallel()
	db, mock, _ := newMockDB(t)
	repo := NewPostgresPayoutRepository(db)

	mock.ExpectQuery(sqlText(markPayoutPaid)).
		WithArgs(int64(40), payout.StatusPaid, mockNow, "TRF-1", int64(1), nil, payout.StatusPending).
		WillReturnRows(payoutRow(40, "PAID"))
	po, err := repo.MarkPaid(context.Background(), processing(40))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if po.Status != payout.StatusPaid || po.TransferReference.String != "TRF-1" {
		t.Fatalf("unexpected payout %+v", po)
	}

	mock.ExpectQuery(sqlText(markPayoutPaid)).
		WillReturnRows(sqlmock.NewRows(columnsOf(payoutColumns)))
	mock.ExpectQuery(sqlText(payoutByID)).
		WithArgs(int64(40)).
		WillReturnRows(payoutRow(40, "PAID"))
	if _, err := repo.MarkPaid(context.Background(), processing(40)); !errors.Is(err, failure.ErrAlreadyProcessed) {
		t.Fatalf("second processing: expected ErrAlreadyProcessed, got %v", err)
	}

	mock.ExpectQuery(sqlText(markPayoutPaid)).
		WillReturnRows(sqlmock.NewRows(columnsOf(payoutColumns)))
	mock.ExpectQuery(sqlText(payoutByID)).
		WillReturnRows(sqlmock.NewRows(columnsOf(payoutColumns)))
	if _, err := repo.MarkPaid(context.Background(), processing(41)); !errors.Is(err, failure.ErrPayoutNotFound) {
		t.Fatalf("unknown payout: expected ErrPayoutNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}
