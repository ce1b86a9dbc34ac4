// Command orderscout runs the chat order-detection pipeline and its
// operator tooling: chat registry management, stats reporting, exports,
// and database administration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/orderscout/orderscout/internal/classify"
	"github.com/orderscout/orderscout/internal/config"
	"github.com/orderscout/orderscout/internal/export"
	"github.com/orderscout/orderscout/internal/feed"
	"github.com/orderscout/orderscout/internal/llm"
	"github.com/orderscout/orderscout/internal/monitoring"
	"github.com/orderscout/orderscout/internal/pipeline"
	"github.com/orderscout/orderscout/internal/registry"
	"github.com/orderscout/orderscout/internal/storage"
	"github.com/orderscout/orderscout/internal/types"
)

func main() {
	app := &cli.App{
		Name:  "orderscout",
		Usage: "detect service-procurement requests in chat message streams",
		Commands: []*cli.Command{
			startCommand(),
			chatCommand(),
			statsCommand(),
			exportCommand(),
			feedbackCommand(),
			adminCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config and builds the logger; shared by every command.
func setup() (*config.Config, zerolog.Logger, error) {
	bootstrap := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: monitoring.LogFormatJSON})
	cfg, err := config.Load(&bootstrap)
	if err != nil {
		return nil, bootstrap, err
	}
	logCfg := monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: monitoring.LogFormat(cfg.LogFormat),
	}
	monitoring.InitGlobalLogger(logCfg)
	return cfg, monitoring.NewLogger(logCfg), nil
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "run the detection pipeline",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "process every chat, ignoring the registry allow-list"},
			&cli.BoolFlag{Name: "replay", Usage: "consume from the NATS replay feed instead of Telegram"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return runPipeline(c.Context, cfg, logger, c.Bool("all"), c.Bool("replay"))
		},
	}
}

// allowAll bypasses the registry when --all is given.
type allowAll struct{}

func (allowAll) IsMonitored(string) bool { return true }

func runPipeline(parent context.Context, cfg *config.Config, logger zerolog.Logger, monitorAll, replay bool) error {
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background tasks are children of bgCtx so the shutdown sequence
	// can stop them after in-flight pipeline runs have drained.
	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	analyzer, err := classify.NewAnalyzer(logger)
	if err != nil {
		return err
	}

	reg, err := registry.Load(cfg.RegistryPath, logger)
	if err != nil {
		return err
	}
	var chatFilter pipeline.ChatRegistry = reg
	if monitorAll {
		chatFilter = allowAll{}
		logger.Warn().Msg("Registry allow-list bypassed; monitoring every chat")
	}

	// Remote tier: cache, governor, client. A missing API key or a zero
	// budget disables the tier; the pattern tier still runs.
	governor := llm.NewBudgetGovernor(cfg.DailyBudgetUSD, llm.Tariff{
		InputPer1K:  cfg.CostInputPer1K,
		OutputPer1K: cfg.CostOutputPer1K,
	}, logger)
	governor.StartDailyReset(bgCtx)

	var cache *llm.ResponseCache
	if cfg.CacheEnabled {
		cache = llm.NewResponseCache(cfg.CacheTTL, llm.DefaultSweepInterval, logger)
		cache.StartSweeper(bgCtx)
		defer cache.Stop()
	}

	var remote pipeline.Classifier
	if cfg.LLMAPIKey != "" && cfg.DailyBudgetUSD > 0 {
		client, err := llm.NewClient(llm.ClientConfig{
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Timeout:     cfg.LLMTimeout,
			MaxRetries:  cfg.LLMRetries,
			BatchSize:   cfg.LLMBatchSize,
			RatePerSec:  cfg.LLMRatePerSec,
			Cache:       cache,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		remote = client
	} else {
		logger.Warn().Msg("Remote classifier disabled; pattern tier only")
	}

	// Persistence: pooled primary plus optional HTTP fallback. A failed
	// pool still starts the process when the fallback is configured.
	var primary *storage.Store
	primary, err = storage.NewStore(ctx, cfg.DSN(), cfg.DBMaxConns, logger)
	if err != nil {
		if cfg.FallbackURL == "" {
			return fmt.Errorf("primary store unavailable and no fallback configured: %w", err)
		}
		logger.Error().Err(err).Msg("Primary store unavailable; starting on HTTP fallback")
		primary = nil
	} else {
		defer primary.Close()
	}
	var fallback *storage.FallbackStore
	if cfg.FallbackURL != "" {
		fallback = storage.NewFallbackStore(cfg.FallbackURL, cfg.FallbackKey, cfg.LLMTimeout, logger)
	}
	store, err := storage.NewManager(primary, fallback, logger)
	if err != nil {
		return err
	}

	var alerter monitoring.Alerter = monitoring.NewConsoleAlerter()
	if cfg.SlackWebhookURL != "" {
		alerter = monitoring.NewMultiAlerter(
			monitoring.NewConsoleAlerter(),
			monitoring.NewSlackAlerter(cfg.SlackWebhookURL, cfg.SlackChannel, "orderscout"),
		)
	}
	errmon := monitoring.NewErrorMonitor(cfg.ErrorThreshold, cfg.ErrorWindow, alerter, logger)

	health := monitoring.NewHealthMonitor(logger)
	health.Start(bgCtx, cfg.HealthInterval)

	metricsSrv := monitoring.NewServer(cfg.MetricsAddr, func() any {
		return map[string]any{
			"status":  "ok",
			"process": health.Snapshot(),
			"budget":  governor.Snapshot(),
		}
	}, logger)
	metricsSrv.Start()

	detector := pipeline.NewDetector(analyzer, remote, governor, store, chatFilter, errmon, pipeline.Config{
		RelevanceThreshold: cfg.RelevanceFloor,
		RemoteSlots:        cfg.RemoteSlots,
		CommitTimeout:      cfg.CommitTimeout,
		Workers:            cfg.Workers,
		QueueSize:          cfg.QueueSize,
	}, logger)
	detector.Start()

	var source feed.Source
	if replay {
		if cfg.NATSURL == "" {
			return fmt.Errorf("replay feed requested but NATS_URL is not set")
		}
		source = feed.NewNATSSource(cfg.NATSURL, cfg.NATSSubject, logger)
	} else {
		source, err = feed.NewTelegramSource(feed.TelegramConfig{
			APIID:       cfg.TelegramAPIID,
			APIHash:     cfg.TelegramAPIHash,
			Phone:       cfg.TelegramPhone,
			Password:    cfg.TelegramPassword,
			SessionPath: cfg.SessionPath,
		}, logger)
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("Pipeline running; press Ctrl-C to stop")
	runErr := source.Run(ctx, detector.Handle)
	if runErr != nil && ctx.Err() == nil {
		logger.Error().Err(runErr).Msg("Feed terminated")
	}

	// Shutdown order: intake already stopped (source returned), drain
	// in-flight runs, then background tasks, then the listeners.
	detector.Stop(cfg.ShutdownGrace)
	cancelBG()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
	health.Wait()

	logger.Info().Msg("Shutdown complete")
	if ctx.Err() != nil {
		return nil
	}
	return runErr
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "manage the monitored-chat registry",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list registered chats",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "all", Usage: "include disabled chats"}},
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					entries := reg.ListActive()
					if c.Bool("all") {
						entries = reg.ListAll()
					}
					if len(entries) == 0 {
						fmt.Println("No chats registered")
						return nil
					}
					for _, e := range entries {
						state := "active"
						if !e.Active {
							state = "disabled"
						}
						fmt.Printf("%-16s p%d %-10s %-9s %s\n", e.ChatID, e.Priority, e.Kind, state, e.Name)
					}
					return nil
				}),
			},
			{
				Name:      "add",
				Usage:     "register a chat: add <chat-id> <name> [--kind group|supergroup|channel] [--priority 1-5]",
				ArgsUsage: "<chat-id> <name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Value: "group"},
					&cli.IntFlag{Name: "priority", Value: 3},
				},
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					if c.NArg() < 2 {
						return fmt.Errorf("usage: chat add <chat-id> <name>")
					}
					kind := types.NormalizeChatKind(c.String("kind"))
					return reg.Add(c.Args().Get(0), c.Args().Get(1), kind, c.Int("priority"))
				}),
			},
			{
				Name:      "remove",
				ArgsUsage: "<chat-id>",
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					return reg.Remove(c.Args().First())
				}),
			},
			{
				Name:      "enable",
				ArgsUsage: "<chat-id>",
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					return reg.Enable(c.Args().First())
				}),
			},
			{
				Name:      "disable",
				ArgsUsage: "<chat-id>",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "reason"}},
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					return reg.Disable(c.Args().First(), c.String("reason"))
				}),
			},
			{
				Name:      "priority",
				ArgsUsage: "<chat-id> <1-5>",
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					if c.NArg() < 2 {
						return fmt.Errorf("usage: chat priority <chat-id> <1-5>")
					}
					p, err := strconv.Atoi(c.Args().Get(1))
					if err != nil {
						return fmt.Errorf("priority must be a number: %w", err)
					}
					return reg.SetPriority(c.Args().Get(0), p)
				}),
			},
			{
				Name:  "clear",
				Usage: "remove every registered chat",
				Action: withRegistry(func(reg *registry.Registry, c *cli.Context) error {
					return reg.Clear()
				}),
			},
		},
	}
}

func withRegistry(fn func(*registry.Registry, *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		reg, err := registry.Load(cfg.RegistryPath, logger)
		if err != nil {
			return err
		}
		return fn(reg, c)
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "reporting over the accumulated dataset",
		Subcommands: []*cli.Command{
			{
				Name:  "summary",
				Flags: []cli.Flag{&cli.StringFlag{Name: "period", Value: "today"}},
				Action: withStore(func(store *storage.Store, c *cli.Context) error {
					period, err := export.ParsePeriod(c.String("period"))
					if err != nil {
						return err
					}
					now := time.Now().UTC()
					sum, err := store.Summary(c.Context, period.Since(now), now)
					if err != nil {
						return err
					}
					return export.WriteSummary(os.Stdout, sum)
				}),
			},
		},
	}
}

func exportCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "period", Value: "all"},
		&cli.StringFlag{Name: "category"},
		&cli.StringFlag{Name: "out", Usage: "output file (default stdout)"},
	}
	run := func(c *cli.Context, render func(f *os.File, orders []storage.Order) error) error {
		return withStore(func(store *storage.Store, c *cli.Context) error {
			filter := export.Filter{
				Period:   export.Period(c.String("period")),
				Category: types.Category(c.String("category")),
			}
			if err := filter.Validate(); err != nil {
				return err
			}
			orders, err := store.OrdersSince(c.Context, filter.Period.Since(time.Now()), filter.Category)
			if err != nil {
				return err
			}
			out := os.Stdout
			toFile := c.String("out") != ""
			if toFile {
				out, err = os.Create(c.String("out"))
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer out.Close()
			}
			if err := render(out, orders); err != nil {
				return err
			}
			// File exports mark the rows so later runs can filter on the
			// exported flag; stdout previews do not.
			if toFile {
				ids := make([]int64, len(orders))
				for i, o := range orders {
					ids[i] = o.ID
				}
				return store.MarkExported(c.Context, ids)
			}
			return nil
		})(c)
	}
	return &cli.Command{
		Name:  "export",
		Usage: "export detected orders",
		Subcommands: []*cli.Command{
			{
				Name:  "csv",
				Flags: flags,
				Action: func(c *cli.Context) error {
					return run(c, func(f *os.File, orders []storage.Order) error {
						return export.WriteCSV(f, orders)
					})
				},
			},
			{
				Name:  "html",
				Flags: flags,
				Action: func(c *cli.Context) error {
					return run(c, func(f *os.File, orders []storage.Order) error {
						return export.WriteHTML(f, orders)
					})
				},
			},
		},
	}
}

func feedbackCommand() *cli.Command {
	return &cli.Command{
		Name:      "feedback",
		Usage:     "record operator feedback for a detected order",
		ArgsUsage: "<order-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Value: "false_positive", Usage: "false_positive or confirmed"},
			&cli.StringFlag{Name: "reason"},
		},
		Action: withStore(func(store *storage.Store, c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: feedback <order-id>")
			}
			orderID, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("order id must be a number: %w", err)
			}
			fbType := c.String("type")
			if fbType != "false_positive" && fbType != "confirmed" {
				return fmt.Errorf("unknown feedback type %q (want false_positive or confirmed)", fbType)
			}
			return store.RecordFeedback(c.Context, orderID, fbType, c.String("reason"))
		}),
	}
}

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "database administration",
		Subcommands: []*cli.Command{
			{
				Name:  "init-db",
				Usage: "create tables and indexes",
				Action: withStore(func(store *storage.Store, c *cli.Context) error {
					if err := store.InitSchema(c.Context); err != nil {
						return err
					}
					fmt.Println("Schema initialized")
					return nil
				}),
			},
			{
				Name:  "test-connection",
				Usage: "probe the primary database",
				Action: withStore(func(store *storage.Store, c *cli.Context) error {
					if err := store.Healthy(c.Context); err != nil {
						return err
					}
					fmt.Println("Connection OK")
					return nil
				}),
			},
		},
	}
}

func withStore(fn func(*storage.Store, *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		store, err := storage.NewStore(c.Context, cfg.DSN(), cfg.DBMaxConns, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(store, c)
	}
}
