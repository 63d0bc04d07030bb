package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/slot"
	"ajo_ledger/internal/infra/logger"
)

const adminTelegramID = 9000

// testClock is a settable clock shared by every service of one env.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// sentMessage records one outbound Telegram message.
type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeTelegram struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeTelegram) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeTelegram) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type testEnv struct {
	ctx   context.Context
	db    *memDB
	clock *testClock
	tg    *fakeTelegram
	admin *member.Member

	members        *MemberService
	cycles         *CycleService
	participations *ParticipationService
	slots          *SlotService
	payments       *PaymentService
	payouts        *PayoutService
	reports        *ReconciliationService
	reminders      *ReminderServiceImpl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newMemDB()
	clock := &testClock{now: time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)}
	log := logger.Discard()
	tg := &fakeTelegram{}

	mr := memMembers{db}
	cr := memCycles{db}
	pr := memParticipations{db}
	tr := memTiers{db}
	payRepo := memPayments{db}
	por := memPayouts{db}

	env := &testEnv{
		ctx:            context.Background(),
		db:             db,
		clock:          clock,
		tg:             tg,
		members:        NewMemberService(mr, adminTelegramID, log),
		cycles:         NewCycleService(cr, mr, log),
		participations: NewParticipationService(cr, pr, tr, log),
		slots:          NewSlotService(cr, pr, por, memSlots{db}, slot.NewReservedSet(1, 2), log),
		payments:       NewPaymentService(payRepo, pr, mr, log),
		payouts:        NewPayoutService(por, pr, mr, log),
		reports:        NewReconciliationService(cr, pr, payRepo, por, log),
		reminders:      NewReminderServiceImpl(payRepo, por, pr, mr, tg, 3, log),
	}
	env.cycles.nowFn = clock.Now
	env.participations.nowFn = clock.Now
	env.slots.nowFn = clock.Now
	env.payments.nowFn = clock.Now
	env.payouts.nowFn = clock.Now
	env.reports.nowFn = clock.Now
	env.reminders.nowFn = clock.Now

	err := env.participations.SeedTiers(env.ctx, []participation.Tier{
		{Name: "20k", MonthlyAmount: decimal.NewFromInt(20000), TotalPayout: decimal.NewFromInt(200000), FineAmount: decimal.NewFromInt(1000)},
		{Name: "50k", MonthlyAmount: decimal.NewFromInt(50000), TotalPayout: decimal.NewFromInt(500000), FineAmount: decimal.NewFromInt(2500)},
		{Name: "100k", MonthlyAmount: decimal.NewFromInt(100000), TotalPayout: decimal.NewFromInt(1000000), FineAmount: decimal.NewFromInt(5000)},
	})
	if err != nil {
		t.Fatalf("seed tiers: %v", err)
	}

	env.admin, err = env.members.EnsureBootstrapAdmin(env.ctx)
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	return env
}

// newMember registers a plain member with a Telegram id derived from n.
func (e *testEnv) newMember(t *testing.T, n int) *member.Member {
	t.Helper()
	m, err := e.members.RegisterMember(e.ctx, int64(1000+n), "Member", "")
	if err != nil {
		t.Fatalf("register member %d: %v", n, err)
	}
	return m
}

// newCycle creates an ACTIVE cycle that started on 1 Jan 2025 with registration open until 31 Jan.
func (e *testEnv) newCycle(t *testing.T, slots int) *cycle.Cycle {
	t.Helper()
	c, err := e.cycles.CreateCycle(e.ctx, e.admin.ID, CycleInput{
		Name:                 "Jan 2025",
		StartDate:            time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, slots, 0),
		RegistrationDeadline: time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		TotalSlots:           slots,
		PaymentDeadlineDay:   28,
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	return c
}

func validBank() *participation.BankDetails {
	return &participation.BankDetails{BankName: "First Bank", AccountNumber: "0123456789", AccountName: "Ada Obi"}
}

// join enrolls m into c on the 50k tier.
func (e *testEnv) join(t *testing.T, m *member.Member, c *cycle.Cycle) *participation.Participation {
	t.Helper()
	p, err := e.participations.JoinCycle(e.ctx, m.ID, c.ID, "50k", validBank())
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return p
}
