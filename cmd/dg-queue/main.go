package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/dg-queue/internal/config"
	"github.com/Sternrassler/dg-queue/internal/ledger"
	"github.com/Sternrassler/dg-queue/pkg/gateway"
	"github.com/Sternrassler/dg-queue/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitFailure = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(stdout, stderr)
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFailure
	}
	return ExitSuccess
}

// flagValues holds the raw command-line flags. They override the config file
// and environment only when set explicitly.
type flagValues struct {
	configPath      string
	url             string
	authenticator   string
	username        string
	passwordFile    string
	downloadName    string
	accessMethod    string
	emailAddress    string
	monitorInterval float64
	httpTimeout     time.Duration
	redisURL        string
	pushgatewayURL  string
	logLevel        string
	logPretty       bool
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	flags  flagValues

	// openLedger is replaced in tests.
	openLedger func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ledger.Ledger, func(), error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		openLedger: openLedger,
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dg-queue INPUT_FILE",
		Short: "Submit DataGateway Download requests for a list of file paths",
		Long: `Submits DataGateway Download requests for a list of specific file paths.
The list is split into separate parts of up to 10,000 files for performance
reasons. Once submitted, Downloads are visible in the DataGateway UI as usual.

INPUT_FILE holds the full paths of all files to submit, one per line. Each
path should match the 'location' field shown in the DataGateway UI.`,
		Example: `  dg-queue paths.txt -u abc12345 -p ~/.dg-password
  dg-queue paths.txt -u abc12345 --access-method globus -m 60
  dg-queue status --download-name beamtime -m 60`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.runSubmit(cmd.Context(), cfg, args[0])
		},
	}

	f := &a.flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	pf.StringVar(&f.url, "url", gateway.DefaultBaseURL, "URL of the DataGateway instance to submit requests to")
	pf.StringVarP(&f.authenticator, "authenticator", "a", "ldap", "authentication mechanism to use for DataGateway login")
	pf.StringVarP(&f.username, "username", "u", "", "username for DataGateway login (required)")
	pf.StringVarP(&f.passwordFile, "password-file", "p", "", "file containing the DataGateway password; prompts if not set")
	pf.StringVar(&f.downloadName, "download-name", "", "base name for the Download(s); '_part_N' is appended per part (default: current date and time)")
	pf.Float64VarP(&f.monitorInterval, "monitor-interval", "m", 0, "seconds between status checks of the submitted Downloads; <= 0 disables monitoring")
	pf.DurationVar(&f.httpTimeout, "http-timeout", 0, "timeout per HTTP request; 0 means none")
	pf.StringVar(&f.redisURL, "redis-url", "", "record submitted download ids in Redis (redis://host:port/db)")
	pf.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "push run metrics to this Prometheus Pushgateway")
	pf.StringVar(&f.logLevel, "log-level", string(logging.LevelInfo), "log level: debug, info, warn or error")
	pf.BoolVar(&f.logPretty, "log-pretty", false, "human-readable log output")

	lf := cmd.Flags()
	lf.StringVar(&f.accessMethod, "access-method", "dls",
		"access method for the data: https (browser download), globus (Globus Online) or dls (restore to the DLS file system for 15 days)")
	lf.StringVar(&f.emailAddress, "email-address", "", "optional address to email status messages to")

	cmd.AddCommand(a.statusCmd())

	return cmd
}

// loadConfig merges file, environment and explicitly set flags, validates
// the result and configures logging.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	f := a.flags
	setIfChanged := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	setIfChanged("url", &cfg.URL, f.url)
	setIfChanged("authenticator", &cfg.Authenticator, f.authenticator)
	setIfChanged("username", &cfg.Username, f.username)
	setIfChanged("password-file", &cfg.PasswordFile, f.passwordFile)
	setIfChanged("download-name", &cfg.DownloadName, f.downloadName)
	setIfChanged("redis-url", &cfg.RedisURL, f.redisURL)
	setIfChanged("pushgateway-url", &cfg.PushgatewayURL, f.pushgatewayURL)
	setIfChanged("log-level", &cfg.Log.Level, f.logLevel)
	if flags.Lookup("access-method") != nil {
		setIfChanged("access-method", &cfg.AccessMethod, f.accessMethod)
		setIfChanged("email-address", &cfg.EmailAddress, f.emailAddress)
	}
	if flags.Changed("monitor-interval") {
		cfg.MonitorInterval = f.monitorInterval
	}
	if flags.Changed("http-timeout") {
		cfg.HTTPTimeout = f.httpTimeout
	}
	if flags.Changed("log-pretty") {
		cfg.Log.Pretty = f.logPretty
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: a.stderr,
	})

	return &cfg, nil
}

// login creates a gateway client and opens a session.
func (a *app) login(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*gateway.Client, string, error) {
	password, err := cfg.PasswordSource().Password()
	if err != nil {
		return nil, "", err
	}

	gwCfg := gateway.DefaultConfig(cfg.URL)
	gwCfg.Timeout = cfg.HTTPTimeout
	client, err := gateway.New(gwCfg)
	if err != nil {
		return nil, "", fmt.Errorf("create gateway client: %w", err)
	}

	sessionID, err := client.Login(ctx, gateway.Credentials{
		Authenticator: cfg.Authenticator,
		Username:      cfg.Username,
		Password:      password,
	})
	if err != nil {
		return nil, "", fmt.Errorf("login: %w", err)
	}

	logger.Info().
		Str("url", client.BaseURL()).
		Str("username", cfg.Username).
		Msg("Logged in to DataGateway")

	return client, sessionID, nil
}

func openLedger(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ledger.Ledger, func(), error) {
	if cfg.RedisURL == "" {
		return ledger.Nop{}, func() {}, nil
	}

	client, err := ledger.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	l := ledger.NewRedisLedger(client, cfg.LedgerTTL, logger.With().Str("component", "ledger").Logger())
	return l, func() { client.Close() }, nil
}
