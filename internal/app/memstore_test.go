package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
	"ajo_ledger/internal/domain/payout"
	"ajo_ledger/internal/domain/slot"
)

// memDB is an in-memory ledger. One mutex guards everything, so each repository call
// behaves like a serializable transaction.
type memDB struct {
	mu             sync.Mutex
	seq            int64
	members        map[int64]*member.Member
	cycles         map[int64]*cycle.Cycle
	tiers          participation.TierSet
	participations map[int64]*participation.Participation
	banks          map[int64]*participation.BankDetails
	payments       map[int64]*payment.Payment
	payouts        map[int64]*payout.Payout
}

func newMemDB() *memDB {
	return &memDB{
		members:        make(map[int64]*member.Member),
		cycles:         make(map[int64]*cycle.Cycle),
		tiers:          participation.TierSet{},
		participations: make(map[int64]*participation.Participation),
		banks:          make(map[int64]*participation.BankDetails),
		payments:       make(map[int64]*payment.Payment),
		payouts:        make(map[int64]*payout.Payout),
	}
}

func (db *memDB) nextID() int64 {
	db.seq++
	return db.seq
}

type (
	memMembers        struct{ *memDB }
	memCycles         struct{ *memDB }
	memTiers          struct{ *memDB }
	memParticipations struct{ *memDB }
	memSlots          struct{ *memDB }
	memPayments       struct{ *memDB }
	memPayouts        struct{ *memDB }
)

var (
	_ member.Repository            = memMembers{}
	_ cycle.Repository             = memCycles{}
	_ participation.TierRepository = memTiers{}
	_ participation.Repository     = memParticipations{}
	_ slot.Store                   = memSlots{}
	_ payment.Repository           = memPayments{}
	_ payout.Repository            = memPayouts{}
)

// --- members ---

func (r memMembers) Create(_ context.Context, m *member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members {
		if existing.TelegramID == m.TelegramID {
			return failure.ErrMemberExists
		}
	}
	m.ID = r.nextID()
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r memMembers) GetByID(_ context.Context, id int64) (*member.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, failure.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (r memMembers) GetByTelegramID(_ context.Context, telegramID int64) (*member.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.TelegramID == telegramID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, failure.ErrMemberNotFound
}

func (r memMembers) Update(_ context.Context, m *member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; !ok {
		return failure.ErrMemberNotFound
	}
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r memMembers) ListAdmins(_ context.Context) ([]*member.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*member.Member, 0)
	for _, m := range r.members {
		if m.IsAdmin && m.IsActive {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- cycles ---

func (r memCycles) Create(_ context.Context, c *cycle.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID()
	cp := *c
	r.cycles[c.ID] = &cp
	return nil
}

func (r memCycles) GetByID(_ context.Context, id int64) (*cycle.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cycles[id]
	if !ok {
		return nil, failure.ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memCycles) List(_ context.Context) ([]*cycle.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*cycle.Cycle, 0, len(r.cycles))
	for _, c := range r.cycles {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCycles) Update(_ context.Context, c *cycle.Cycle, from cycle.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cycles[c.ID]
	if !ok {
		return failure.ErrCycleNotFound
	}
	if stored.Status != from || (c.Status != from && !cycle.CanTransition(from, c.Status)) {
		return failure.ErrInvalidTransition
	}
	if u := r.usageLocked(c.ID); c.TotalSlots < u.Floor() {
		return failure.ErrCapacityConflict
	}
	cp := *c
	r.cycles[c.ID] = &cp
	return nil
}

func (r memCycles) UpdateStatus(_ context.Context, id int64, from, to cycle.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cycles[id]
	if !ok {
		return failure.ErrCycleNotFound
	}
	if c.Status != from {
		return failure.ErrInvalidTransition
	}
	c.Status = to
	return nil
}

func (r memCycles) CountParticipants(_ context.Context, cycleID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usageLocked(cycleID).ParticipantCount, nil
}

func (r memCycles) GetUsage(_ context.Context, cycleID int64) (cycle.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usageLocked(cycleID), nil
}

func (db *memDB) usageLocked(cycleID int64) cycle.Usage {
	var u cycle.Usage
	for _, p := range db.participations {
		if p.CycleID != cycleID {
			continue
		}
		u.ParticipantCount++
		if p.PickedNumber.Valid && int(p.PickedNumber.Int64) > u.MaxPickedNumber {
			u.MaxPickedNumber = int(p.PickedNumber.Int64)
		}
	}
	return u
}

// --- tiers ---

func (r memTiers) Snapshot(_ context.Context) (participation.TierSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(participation.TierSet, len(r.tiers))
	for k, v := range r.tiers {
		out[k] = v
	}
	return out, nil
}

func (r memTiers) Upsert(_ context.Context, t participation.Tier) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range participation.NewTierSet([]participation.Tier{t}) {
		r.tiers[k] = v
	}
	return nil
}

// --- participations ---

func (r memParticipations) Join(_ context.Context, e *participation.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := e.Participation
	c, ok := r.cycles[p.CycleID]
	if !ok {
		return failure.ErrCycleNotFound
	}
	if c.IsClosed() {
		return failure.ErrCycleClosed
	}
	if !p.RegisteredAt.Before(c.RegistrationDeadline) {
		return failure.ErrDeadlinePassed
	}
	for _, existing := range r.participations {
		if existing.UserID == p.UserID && existing.CycleID == p.CycleID {
			return failure.ErrAlreadyRegistered
		}
	}
	if r.usageLocked(p.CycleID).ParticipantCount >= c.TotalSlots {
		return failure.ErrNoSlotsAvailable
	}

	p.ID = r.nextID()
	cp := *p
	r.participations[p.ID] = &cp

	e.Bank.ID = r.nextID()
	e.Bank.ParticipationID = p.ID
	bank := *e.Bank
	r.banks[p.ID] = &bank

	for _, pay := range e.Schedule {
		pay.ID = r.nextID()
		pay.ParticipationID = p.ID
		pay.UserID = p.UserID
		pay.CycleID = p.CycleID
		pc := *pay
		r.payments[pay.ID] = &pc
	}
	return nil
}

func (r memParticipations) GetByID(_ context.Context, id int64) (*participation.Participation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participations[id]
	if !ok {
		return nil, failure.ErrParticipationNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memParticipations) GetByUserAndCycle(_ context.Context, userID, cycleID int64) (*participation.Participation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participations {
		if p.UserID == userID && p.CycleID == cycleID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, failure.ErrParticipationNotFound
}

func (r memParticipations) Exists(ctx context.Context, userID, cycleID int64) (bool, error) {
	_, err := r.GetByUserAndCycle(ctx, userID, cycleID)
	return err == nil, nil
}

func (r memParticipations) GetActiveForUser(_ context.Context, userID int64) (*participation.Participation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *participation.Participation
	for _, p := range r.participations {
		c := r.cycles[p.CycleID]
		if p.UserID != userID || p.HasOptedOut || c == nil || c.Status != cycle.StatusActive {
			continue
		}
		if best == nil || p.RegisteredAt.After(best.RegisteredAt) ||
			(p.RegisteredAt.Equal(best.RegisteredAt) && p.ID > best.ID) {
			best = p
		}
	}
	if best == nil {
		return nil, failure.ErrNotRegistered
	}
	cp := *best
	return &cp, nil
}

func (r memParticipations) list(match func(*participation.Participation) bool) []*participation.Participation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*participation.Participation, 0)
	for _, p := range r.participations {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memParticipations) ListByCycle(_ context.Context, cycleID int64) ([]*participation.Participation, error) {
	return r.list(func(p *participation.Participation) bool { return p.CycleID == cycleID }), nil
}

func (r memParticipations) ListByUser(_ context.Context, userID int64) ([]*participation.Participation, error) {
	return r.list(func(p *participation.Participation) bool { return p.UserID == userID }), nil
}

func (r memParticipations) GetBankDetails(_ context.Context, participationID int64) (*participation.BankDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.banks[participationID]
	if !ok {
		return nil, failure.ErrParticipationNotFound
	}
	cp := *b
	return &cp, nil
}

func (r memParticipations) SetOptedOut(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participations[id]
	if !ok {
		return failure.ErrParticipationNotFound
	}
	if p.PickedNumber.Valid {
		return failure.ErrOptOutNotAllowed
	}
	p.HasOptedOut = true
	return nil
}

// --- slots ---

func (r memSlots) Assign(_ context.Context, a *slot.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cycles[a.CycleID]
	if !ok {
		return failure.ErrCycleNotFound
	}
	if err := slot.CheckAssignable(c.Status, c.TotalSlots, a.Number); err != nil {
		return err
	}
	p, ok := r.participations[a.ParticipationID]
	if !ok || p.CycleID != a.CycleID {
		return failure.ErrParticipationNotFound
	}
	if p.PickedNumber.Valid {
		return failure.ErrAlreadyPicked
	}
	for _, other := range r.participations {
		if other.ID != p.ID && other.CycleID == a.CycleID && other.PickedNumber.Valid && int(other.PickedNumber.Int64) == a.Number {
			return failure.ErrSlotTaken
		}
	}
	p.PickedNumber = sql.NullInt64{Int64: int64(a.Number), Valid: true}

	for _, existing := range r.payouts {
		if existing.ParticipationID == p.ID {
			existing.Amount = a.Payout.Amount
			existing.ScheduledMonth = a.Payout.ScheduledMonth
			existing.ScheduledDate = a.Payout.ScheduledDate
			a.Payout.ID = existing.ID
			return nil
		}
	}
	a.Payout.ID = r.nextID()
	cp := *a.Payout
	r.payouts[cp.ID] = &cp
	return nil
}

func (r memSlots) PickedNumbers(_ context.Context, cycleID int64) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0)
	for _, p := range r.participations {
		if p.CycleID == cycleID && p.PickedNumber.Valid {
			out = append(out, int(p.PickedNumber.Int64))
		}
	}
	sort.Ints(out)
	return out, nil
}

// --- payments ---

func (r memPayments) GetByID(_ context.Context, id int64) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, failure.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPayments) list(match func(*payment.Payment) bool) []*payment.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*payment.Payment, 0)
	for _, p := range r.payments {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memPayments) ListByParticipation(_ context.Context, participationID int64) ([]*payment.Payment, error) {
	return r.list(func(p *payment.Payment) bool { return p.ParticipationID == participationID }), nil
}

func (r memPayments) Settle(_ context.Context, s payment.Settlement) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[s.PaymentID]
	if !ok {
		return nil, failure.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPending {
		return nil, failure.ErrAlreadyPaid
	}
	s.Apply(p)
	cp := *p
	return &cp, nil
}

func (r memPayments) AttachProof(_ context.Context, id int64, proofRef string, submittedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return failure.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPending {
		return failure.ErrAlreadyPaid
	}
	p.ProofOfPayment = sql.NullString{String: proofRef, Valid: true}
	if !p.ProofSubmittedAt.Valid {
		p.ProofSubmittedAt = sql.NullTime{Time: submittedAt, Valid: true}
	}
	p.Notes = sql.NullString{}
	return nil
}

func (r memPayments) RejectProof(_ context.Context, id int64, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return failure.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPending {
		return failure.ErrAlreadyPaid
	}
	p.ProofOfPayment = sql.NullString{}
	p.ProofSubmittedAt = sql.NullTime{}
	p.Notes = sql.NullString{String: notes, Valid: true}
	return nil
}

func (r memPayments) MarkVerified(_ context.Context, id, adminID int64, at time.Time) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, failure.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPaid || p.VerifiedBy.Valid {
		return nil, failure.ErrAlreadyPaid
	}
	p.VerifiedBy = sql.NullInt64{Int64: adminID, Valid: true}
	p.VerifiedAt = sql.NullTime{Time: at, Valid: true}
	cp := *p
	return &cp, nil
}

func (r memPayments) CountOverdue(_ context.Context, participationID int64, now time.Time) (int, error) {
	return len(r.list(func(p *payment.Payment) bool {
		return p.ParticipationID == participationID && p.IsOverdue(now)
	})), nil
}

func (r memPayments) ListPendingDueBetween(_ context.Context, from, to time.Time) ([]*payment.Payment, error) {
	return r.list(func(p *payment.Payment) bool {
		return p.Status == payment.StatusPending && !p.DueDate.Before(from) && p.DueDate.Before(to)
	}), nil
}

func (r memPayments) List(_ context.Context, f payment.Filter) ([]*payment.Payment, error) {
	return r.list(func(p *payment.Payment) bool { return f.CycleID == 0 || p.CycleID == f.CycleID }), nil
}

// --- payouts ---

func (r memPayouts) GetByID(_ context.Context, id int64) (*payout.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, failure.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPayouts) list(match func(*payout.Payout) bool) []*payout.Payout {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*payout.Payout, 0)
	for _, p := range r.payouts {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memPayouts) GetByParticipation(_ context.Context, participationID int64) (*payout.Payout, error) {
	found := r.list(func(p *payout.Payout) bool { return p.ParticipationID == participationID })
	if len(found) == 0 {
		return nil, failure.ErrPayoutNotFound
	}
	return found[0], nil
}

func (r memPayouts) ListByIDs(_ context.Context, ids []int64) ([]*payout.Payout, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.list(func(p *payout.Payout) bool { return want[p.ID] }), nil
}

func (r memPayouts) List(_ context.Context, f payout.Filter) ([]*payout.Payout, error) {
	return r.list(func(p *payout.Payout) bool { return f.CycleID == 0 || p.CycleID == f.CycleID }), nil
}

func (r memPayouts) ListPendingDueBy(_ context.Context, t time.Time) ([]*payout.Payout, error) {
	return r.list(func(p *payout.Payout) bool {
		return p.Status == payout.StatusPending && !p.ScheduledDate.After(t)
	}), nil
}

func (r memPayouts) MarkPaid(_ context.Context, pr payout.Processing) (*payout.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[pr.PayoutID]
	if !ok {
		return nil, failure.ErrPayoutNotFound
	}
	if p.Status != payout.StatusPending {
		return nil, failure.ErrAlreadyProcessed
	}
	p.Status = payout.StatusPaid
	p.PaidAt = sql.NullTime{Time: pr.PaidAt, Valid: true}
	p.TransferReference = sql.NullString{String: pr.TransferReference, Valid: true}
	p.ProcessedBy = sql.NullInt64{Int64: pr.ProcessedBy, Valid: true}
	p.Notes = pr.Notes
	cp := *p
	return &cp, nil
}
