package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yourneighborhoodchef/pickupwatch/internal/client"
	"github.com/yourneighborhoodchef/pickupwatch/internal/config"
	"github.com/yourneighborhoodchef/pickupwatch/internal/headers"
	"github.com/yourneighborhoodchef/pickupwatch/internal/logging"
	"github.com/yourneighborhoodchef/pickupwatch/internal/metrics"
	"github.com/yourneighborhoodchef/pickupwatch/internal/monitor"
	"github.com/yourneighborhoodchef/pickupwatch/internal/notify"
	"github.com/yourneighborhoodchef/pickupwatch/internal/telegram"
	"github.com/yourneighborhoodchef/pickupwatch/internal/vault"
)

const headerProfiles = 50

type options struct {
	cfgFile string
	envFile string
	once    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pickupwatch",
		Short: "Watch in-store pickup availability and alert a Telegram chat when it changes.",
		Long: `pickupwatch polls the retail pickup-message endpoint for one part number
near one location, and sends a Telegram message whenever the set of stores
offering pickup changes.

Settings come from the environment (PART_NUMBER, LOCATION_CODE,
TELEGRAM_TOKEN, TELEGRAM_CHAT_ID, ...), a .env file, or a YAML config file.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown argument: '%s'. See 'pickupwatch --help'", args[0])
			}
			return run(cmd.Context(), v, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.pickupwatch.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to read if present")
	flags.BoolVar(&opts.once, "once", false, "run a single cycle and exit")
	flags.StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("status-json", false, "Print one JSON status line per cycle to stdout")

	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("loglevel"))
	_ = v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	_ = v.BindPFlag(config.KeyMetricsAddr, flags.Lookup("metrics-addr"))
	_ = v.BindPFlag(config.KeyStatusJSON, flags.Lookup("status-json"))

	return cmd
}

func run(parent context.Context, v *viper.Viper, opts *options) error {
	config.SetDefaults(v)
	v.AutomaticEnv()
	if err := config.ReadFiles(v, opts.cfgFile, opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}

	if opts.once {
		res := mon.RunCycle(ctx)
		return res.Err
	}
	return mon.Run(ctx)
}

func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*monitor.Monitor, error) {
	pool := headers.NewPool(cfg.LinkURL, headerProfiles)
	rotator := client.NewProxyRotator(cfg.ProxyURLs)
	if n := rotator.Len(); n > 0 {
		log.Infof("Using %d proxy(ies)", n)
	}

	// Each rotation drops the proxy that was just blocked, keeping the last one.
	var current string
	newDoer := func() (client.Doer, error) {
		if current != "" && rotator.Len() > 1 {
			left := rotator.Remove(current)
			log.WithField("proxy", current).Warnf("Dropping blocked proxy, %d left", left)
		}
		c, err := client.CreateClient(cfg.RequestTimeout, rotator)
		if err != nil {
			return nil, err
		}
		current = c.ProxyURL
		return c, nil
	}
	doer, err := newDoer()
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	var fetchOpts []client.FetcherOption
	if rotator.Len() > 1 {
		fetchOpts = append(fetchOpts, client.WithRotation(newDoer))
	}
	fetcher, err := client.NewPickupFetcher(doer, pool, cfg.BaseURI, cfg.PartNumber, cfg.LocationCode, log, fetchOpts...)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"url":      fetcher.URL(),
		"part":     cfg.PartNumber,
		"location": cfg.LocationCode,
	}).Info("Getting pickup info")

	bot := telegram.New(telegram.Config{
		APIURL:    cfg.TelegramAPIURL,
		Token:     cfg.TelegramToken,
		ChatID:    cfg.TelegramChatID,
		ParseMode: cfg.TelegramParseMode,
		Timeout:   cfg.RequestTimeout,
	})
	notifyOpts := []notify.Option{
		notify.WithRetryPolicy(notify.RetryPolicy{
			MaxAttempts: cfg.NotifyMaxAttempts,
			Delay:       cfg.NotifyRetryDelay,
		}),
		notify.WithCooldown(cfg.NotifyCooldown),
		notify.WithSendOptions(telegram.SendOptions{
			LinkURL:             cfg.LinkURL,
			DisableNotification: cfg.TelegramSilent,
		}),
	}
	if cfg.TelegramPin {
		notifyOpts = append(notifyOpts, notify.WithPinner(bot, notify.DefaultPinPolicy()))
	}
	notifier := notify.New(bot, log.WithField("component", "telegram"), notifyOpts...)

	monCfg := monitor.Config{
		Part:       cfg.PartNumber,
		Location:   cfg.LocationCode,
		MinDelay:   cfg.PollMinDelay,
		MaxDelay:   cfg.PollMaxDelay,
		ErrorDelay: cfg.ErrorDelay,
	}
	monOpts := []monitor.Option{}
	if cfg.TelegramPin {
		monOpts = append(monOpts, monitor.WithPinner(notifier))
	}
	if cfg.ArchiveDir != "" {
		archive, err := vault.New(cfg.ArchiveDir, cfg.ArchiveName)
		if err != nil {
			return nil, err
		}
		monOpts = append(monOpts, monitor.WithArchive(archive))
	}
	if cfg.StatusJSON {
		monOpts = append(monOpts, monitor.WithStatus(logging.NewStatus(os.Stdout)))
	}
	if cfg.MetricsAddr != "" {
		mt := metrics.New()
		monOpts = append(monOpts, monitor.WithMetrics(mt))
		go func() {
			if err := mt.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	return monitor.New(monCfg, fetcher, notifier, log, monOpts...), nil
}
