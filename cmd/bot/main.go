package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/app"
	"ajo_ledger/internal/domain/slot"
	"ajo_ledger/internal/infra/config"
	idb "ajo_ledger/internal/infra/database"
	"ajo_ledger/internal/infra/lock"
	"ajo_ledger/internal/infra/logger"
	"ajo_ledger/internal/infra/scheduler"
	"ajo_ledger/internal/infra/storage"
	"ajo_ledger/internal/infra/telegram"
)

func main() {
	fmt.Println("Ajo Ledger Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg)
	mainLogger := logger.WithService("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"admin_id":    cfg.AdminTelegramID,
		"reserved":    cfg.ReservedNumbers,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	if err := idb.RunMigrations(ctx, db, logger.WithService("migrations")); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}

	repos := idb.NewRepositories(db, cfg.MaxTxRetries, logger.WithService("database"))

	// Services
	memberService := app.NewMemberService(repos.Members, cfg.AdminTelegramID, logger.WithService("members"))
	cycleService := app.NewCycleService(repos.Cycles, repos.Members, logger.WithService("cycle_registry"))
	participationService := app.NewParticipationService(repos.Cycles, repos.Participations, repos.Tiers, logger.WithService("participation_ledger"))
	slotService := app.NewSlotService(repos.Cycles, repos.Participations, repos.Payouts, repos.Slots,
		slot.NewReservedSet(cfg.ReservedNumbers...), logger.WithService("slot_allocator"))
	paymentService := app.NewPaymentService(repos.Payments, repos.Participations, repos.Members, logger.WithService("payments"))
	payoutService := app.NewPayoutService(repos.Payouts, repos.Participations, repos.Members, logger.WithService("payouts"))
	reportService := app.NewReconciliationService(repos.Cycles, repos.Participations, repos.Payments, repos.Payouts, logger.WithService("reconciliation"))

	tiers, err := config.LoadTiers(cfg.TiersFile)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not load contribution tiers")
	}
	if err := participationService.SeedTiers(ctx, tiers); err != nil {
		mainLogger.WithError(err).Fatal("Could not seed contribution tiers")
	}
	mainLogger.WithField("tiers", len(tiers)).Info("Contribution tiers loaded")

	if _, err := memberService.EnsureBootstrapAdmin(ctx); err != nil {
		mainLogger.WithError(err).Fatal("Could not bootstrap admin")
	}

	// Job lock
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		client, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not connect to Redis")
		}
		defer client.Close()
		locker = lock.NewRedis(client, logger.WithService("lock"))
		mainLogger.Info("Redis job lock enabled")
	}

	// Proof storage
	var proofs storage.ProofStore
	if cfg.S3.Enabled() {
		store, err := storage.NewS3Store(ctx, cfg.S3, logger.WithService("storage"))
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not configure proof storage")
		}
		proofs = store
		mainLogger.WithField("bucket", cfg.S3.Bucket).Info("S3 proof storage enabled")
	} else {
		mainLogger.Warn("S3_BUCKET not set, receipts are kept as Telegram file ids")
	}

	// Initialize Telegram Bot
	botLogger := logger.WithService("telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"text": c.Text(), "sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	telegramClient := telegram.NewTelebotAdapter(bot, logger.WithService("telegram_client"))

	reminderService := app.NewReminderServiceImpl(repos.Payments, repos.Payouts, repos.Participations, repos.Members,
		telegramClient, cfg.ReminderLeadDays, logger.WithService("reminders"))

	// Register Handlers
	handlers := telegram.NewHandlers(ctx, telegram.Services{
		Members:        memberService,
		Cycles:         cycleService,
		Participations: participationService,
		Slots:          slotService,
		Payments:       paymentService,
		Payouts:        payoutService,
		Reports:        reportService,
	}, proofs, telegramClient, logger.WithService("telegram"))
	handlers.Register(bot)
	mainLogger.Info("Command handlers registered.")

	ledgerScheduler := scheduler.NewLedgerScheduler(cycleService, reminderService, locker, logger.WithService("scheduler"), scheduler.Specs{
		CycleStatus:      cfg.CronSpecCycleStatus,
		PaymentReminders: cfg.CronSpecPaymentReminders,
		PayoutDue:        cfg.CronSpecPayoutDue,
	})
	if err := ledgerScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	mainLogger.Info("Application setup complete. Bot and Scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	bot.Stop()
	ledgerScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
