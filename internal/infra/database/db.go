package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
	"ajo_ledger/internal/domain/payout"
	"ajo_ledger/internal/domain/slot"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

var (
	_ member.Repository            = (*PostgresMemberRepository)(nil)
	_ participation.TierRepository = (*PostgresTierRepository)(nil)
	_ cycle.Repository             = (*PostgresCycleRepository)(nil)
	_ participation.Repository     = (*PostgresParticipationRepository)(nil)
	_ slot.Store                   = (*PostgresSlotStore)(nil)
	_ payment.Repository           = (*PostgresPaymentRepository)(nil)
	_ payout.Repository            = (*PostgresPayoutRepository)(nil)
)

// Repositories bundles every Postgres-backed repository of the ledger.
type Repositories struct {
	Members        *PostgresMemberRepository
	Tiers          *PostgresTierRepository
	Cycles         *PostgresCycleRepository
	Participations *PostgresParticipationRepository
	Slots          *PostgresSlotStore
	Payments       *PostgresPaymentRepository
	Payouts        *PostgresPayoutRepository
}

// NewRepositories wires repositories over one pool. Transactional writes retry
// serialization failures up to maxTxAttempts times.
func NewRepositories(db *sql.DB, maxTxAttempts int, logger *logrus.Entry) *Repositories {
	runner := NewTxRunner(db, maxTxAttempts, logger)
	return &Repositories{
		Members:        NewPostgresMemberRepository(db),
		Tiers:          NewPostgresTierRepository(db),
		Cycles:         NewPostgresCycleRepository(db, runner),
		Participations: NewPostgresParticipationRepository(db, runner),
		Slots:          NewPostgresSlotStore(db, runner),
		Payments:       NewPostgresPaymentRepository(db),
		Payouts:        NewPostgresPayoutRepository(db),
	}
}
