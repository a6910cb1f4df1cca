package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/adapters/jwtauth"
	"github.com/target/mmk-docpipe/internal/bootstrap"
	"github.com/target/mmk-docpipe/internal/domain/model"
	"github.com/target/mmk-docpipe/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	// Jobs opens the job queue; tests replace it with a fake.
	Jobs func(cmdCtx *commandContext) (jobAdmin, func(), error)
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = time.Minute
	defaultFailedLimit      = 20
	defaultTokenTTL         = time.Hour
)

var errMissingFlag = errors.New("missing required flag")

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.IsDev)

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		Jobs:   openJobAdmin,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"schema-version": {
			name:        "schema-version",
			description: "Print the applied database schema version",
			run:         runSchemaVersion,
		},
		"queue-counts": {
			name:        "queue-counts",
			description: "Show per-state job counts for a queue",
			run:         runQueueCounts,
		},
		"list-failed": {
			name:        "list-failed",
			description: "List the most recently failed jobs of a queue",
			run:         runListFailed,
		},
		"retry-failed": {
			name:        "retry-failed",
			description: "Return every failed job of a queue to pending",
			run:         runRetryFailed,
		},
		"issue-token": {
			name:        "issue-token",
			description: "Sign a bearer token for local testing",
			run:         runIssueToken,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: docpipe-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultMigrationTimeout
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runSchemaVersion(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	version, err := migrate.Version(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	return writef(cmdCtx.Out, "%d\n", version)
}

type queueOptions struct {
	Queue string
	Limit int
	Yes   bool
}

func parseQueueFlags(name string, args []string) (queueOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := queueOptions{}
	fs.StringVar(&opts.Queue, "queue", model.QueueDocumentScan, "queue name")
	fs.IntVar(&opts.Limit, "limit", defaultFailedLimit, "maximum jobs to list")
	fs.BoolVar(&opts.Yes, "yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.Queue = strings.TrimSpace(opts.Queue)
	if opts.Queue == "" {
		return opts, fmt.Errorf("%w: -queue", errMissingFlag)
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultFailedLimit
	}
	return opts, nil
}

func runQueueCounts(cmdCtx *commandContext, args []string) error {
	opts, err := parseQueueFlags("queue-counts", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	jobs, closeFn, err := cmdCtx.Jobs(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	counts, err := jobs.Counts(ctx, opts.Queue)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 0, 2, ' ', 0)
	rows := []struct {
		state string
		n     int
	}{
		{"waiting", counts.Waiting},
		{"active", counts.Active},
		{"delayed", counts.Delayed},
		{"completed", counts.Completed},
		{"failed", counts.Failed},
	}
	if err := writef(tw, "QUEUE\tSTATE\tCOUNT\n"); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writef(tw, "%s\t%s\t%d\n", opts.Queue, r.state, r.n); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runListFailed(cmdCtx *commandContext, args []string) error {
	opts, err := parseQueueFlags("list-failed", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	jobs, closeFn, err := cmdCtx.Jobs(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	failed, err := jobs.ListFailed(ctx, opts.Queue, opts.Limit)
	if err != nil {
		return err
	}
	return printFailedJobs(cmdCtx.Out, failed)
}

func printFailedJobs(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writef(w, "no failed jobs\n")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tKIND\tATTEMPTS\tUPDATED\tLAST ERROR\n"); err != nil {
		return err
	}
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = truncate(*j.LastError, 80)
		}
		if err := writef(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Kind, j.AttemptsMade, j.MaxAttempts,
			j.UpdatedAt.UTC().Format(time.RFC3339), lastErr); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func runRetryFailed(cmdCtx *commandContext, args []string) error {
	opts, err := parseQueueFlags("retry-failed", args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		return errors.New("retry-failed requeues every failed job; rerun with -yes to confirm")
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	jobs, closeFn, err := cmdCtx.Jobs(cmdCtx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := jobs.RetryFailed(ctx, opts.Queue)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "requeued %d failed job(s) on %s\n", n, opts.Queue)
}

type tokenOptions struct {
	Subject string
	Role    string
	TTL     time.Duration
}

func parseTokenFlags(args []string) (tokenOptions, error) {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	opts := tokenOptions{}
	fs.StringVar(&opts.Subject, "sub", "", "token subject (requester id)")
	fs.StringVar(&opts.Role, "role", string(model.RolePatient), "requester role")
	fs.DurationVar(&opts.TTL, "ttl", defaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.Subject = strings.TrimSpace(opts.Subject)
	if opts.Subject == "" {
		return opts, fmt.Errorf("%w: -sub", errMissingFlag)
	}
	if !model.Role(opts.Role).Valid() {
		return opts, fmt.Errorf("unknown role %q", opts.Role)
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTokenTTL
	}
	return opts, nil
}

func runIssueToken(cmdCtx *commandContext, args []string) error {
	opts, err := parseTokenFlags(args)
	if err != nil {
		return err
	}
	v, err := jwtauth.NewVerifier(jwtauth.Options{Config: cmdCtx.Config.Auth})
	if err != nil {
		return fmt.Errorf("create jwt signer: %w", err)
	}
	token, err := v.Issue(model.Requester{ID: opts.Subject, Role: model.Role(opts.Role)}, opts.TTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	return writef(cmdCtx.Out, "%s\n", token)
}
