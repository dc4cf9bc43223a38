package commands

import (
	"context"
	"fmt"
	"os"

	"cei-crawler/cmd/cei-cli/globals"
	"cei-crawler/internal/captcha"
	"cei-crawler/internal/components/telemetry"
	"cei-crawler/internal/scrapers/cei"
	"cei-crawler/lib/configutil"
	"cei-crawler/lib/restyutil"
	libtelemetry "cei-crawler/lib/telemetry"

	"github.com/spf13/cobra"
)

const (
	formatTable = "table"
	formatJson  = "json"
)

var (
	configPath string
	format     string
	dumpDir    string
	verbose    bool
)

// resources that outlive a single command and are released after it
var (
	pool      *cei.Pool
	session   *cei.Session
	providers libtelemetry.Telemetry
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.json5", "The config file, <name>.local.<ext> overrides it.")
	flags.StringVar(&format, "format", formatTable, "Output format, table or json.")
	flags.StringVar(&dumpDir, "dump-dir", "", "Writes every http exchange to this directory.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enables debug logs.")
}

var rootCmd = &cobra.Command{
	Use:               "cei-cli",
	Short:             "cei-cli crawls the B3 CEI portal for brokers, asset trades and passive incomes.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.Context())
	},
}

func setup(cmd *cobra.Command, _ []string) error {
	if format != formatTable && format != formatJson {
		return fmt.Errorf("unknown format %q, expected table or json", format)
	}

	libtelemetry.InitSlog(verbose)

	cfg, err := configutil.ReadConfig[Config](configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	err = cfg.Validate()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	providers, err = libtelemetry.Setup(ctx, "cei-cli", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	tel := telemetry.SlogAPI{}

	var resolver captcha.Resolver
	if cfg.TwoCaptchaKey != "" {
		resolver = captcha.NewTwoCaptcha(captcha.TwoCaptchaOptions{
			ApiKey:    cfg.TwoCaptchaKey,
			Telemetry: tel,
		})
	}

	var dump restyutil.Output
	if dumpDir != "" {
		dump, err = restyutil.NewFilesystemOutput(dumpDir)
		if err != nil {
			return fmt.Errorf("dump dir: %w", err)
		}
	}

	pool = cei.NewPool(cei.PoolOptions{
		Size:             cfg.PoolSize,
		CloudflareBypass: cfg.CloudflareBypass,
	})
	session, err = cei.NewSession(cei.SessionOptions{
		Username:          cfg.Username,
		Password:          cfg.Password,
		Pool:              pool,
		Captcha:           resolver,
		BaseUrl:           cfg.BaseUrl,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Telemetry:         tel,
		Dump:              dump,
	})
	if err != nil {
		return err
	}

	cmd.SetContext(globals.Set(ctx, &globals.Value{
		Session:   session,
		Telemetry: tel,
		Format:    format,
	}))
	return nil
}

func teardown(ctx context.Context) error {
	if session != nil {
		_ = session.Close()
		session = nil
	}
	if pool != nil {
		_ = pool.Close()
		pool = nil
	}
	err := providers.Shutdown(context.WithoutCancel(ctx))
	providers = libtelemetry.Telemetry{}
	return err
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		_ = teardown(ctx)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
