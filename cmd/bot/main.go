package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"health-bot/internal/config"
	"health-bot/internal/conversation"
	"health-bot/internal/flows"
	"health-bot/internal/logging"
	"health-bot/internal/records"
	"health-bot/internal/records/schema"
	"health-bot/internal/scheduler"
	"health-bot/internal/session"
	"health-bot/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("bot stopped with error")
	}
	log.Info().Msg("bot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := records.Open(ctx, cfg.DBPath, schema.Tables())
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close record store")
		}
	}()

	catalog, err := flows.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	seeded, err := flows.SeedProducts(ctx, st, catalog)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	if seeded > 0 {
		log.Info().Int("products", seeded).Msg("product catalog seeded")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("authorized")

	sessions := session.NewStore(cfg.SessionTTL)
	out := telegram.NewPresenter(api, cfg.MessageParseMode)
	coord, err := conversation.New(sessions, out, flows.All(st)...)
	if err != nil {
		return err
	}
	bot := telegram.New(api, out, coord, st, cfg.AdminUserID)

	sched := scheduler.New()
	if cfg.SessionTTL > 0 {
		err := sched.AddJob("session-sweep", cfg.SessionSweepSpec, func(context.Context) error {
			if n := sessions.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("sessions swept")
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if cfg.AdminUserID != 0 {
		if err := sched.AddJob("daily-report", cfg.ReportSpec, bot.SendReport); err != nil {
			return err
		}
	}
	sched.Start()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		bot.Start(egCtx)
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Bool("scheduler_running", sched.IsRunning()).Msg("shutting down")
		sched.Stop()
		return nil
	})
	return eg.Wait()
}
