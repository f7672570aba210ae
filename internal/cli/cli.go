package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ndb/internal/cas"
	"github.com/nerrad567/ndb/internal/device"
	"github.com/nerrad567/ndb/internal/infrastructure/config"
	"github.com/nerrad567/ndb/internal/infrastructure/database"
	"github.com/nerrad567/ndb/internal/infrastructure/logging"

	// Registers the embedded schema migrations.
	_ "github.com/nerrad567/ndb/migrations"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitNotFound = 1
	ExitFailure  = 2
)

// ExitError carries a process exit code and the message shown for it.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("exit status %d", e.Code)
	}
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func notFound(what string) error {
	return &ExitError{Code: ExitNotFound, Message: "Not found: " + what}
}

// failure wraps err for exit code 2, keeping ErrDeviceNotFound at 1.
func failure(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	if errors.Is(err, device.ErrDeviceNotFound) {
		return &ExitError{Code: ExitNotFound, Err: err}
	}
	return &ExitError{Code: ExitFailure, Err: err}
}

// app holds global flags and the streams commands write to.
type app struct {
	version string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer

	dbPath     string
	configPath string
	logLevel   string

	cfg *config.Config
	log *logging.Logger
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, version string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCmd(version, stdin, stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	code := ExitFailure
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
		switch {
		case exitErr.Message != "":
			fmt.Fprintln(stderr, exitErr.Message)
		case exitErr.Err != nil:
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return code
}

// NewRootCmd builds the ndb command tree.
func NewRootCmd(version string, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		version: version,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}

	root := &cobra.Command{
		Use:           "ndb",
		Short:         "ndb - a network database",
		Long:          `ndb records devices found on the local network in a SQLite registry backed by a content-addressed store.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.dbPath, "path", config.DefaultDatabasePath, "path to SQLite database")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: $NDB_CONFIG or ndb.yaml when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.newDBCmd(),
		a.newCASCmd(),
		a.newPutCmd(),
		a.newLsCmd(),
		a.newQueryCmd(),
		a.newGetCmd(),
		a.newRmCmd(),
		a.newDiscoverCmd(),
		a.newListenCmd(),
	)
	return root
}

// setup loads configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.Load(a.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return failure(err)
	}

	if cmd.Flags().Changed("path") || cfg.Database.Path == "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logOut := a.stderr
	if strings.EqualFold(cfg.Logging.Output, "stdout") {
		logOut = a.stdout
	}

	a.cfg = cfg
	a.log = logging.NewWithWriter(cfg.Logging, a.version, logOut)
	a.log.Debug("configuration loaded", "database", cfg.Database.Path)
	return nil
}

// services is an open database with the store and registry over it.
type services struct {
	db       *database.DB
	store    *cas.Store
	registry *device.Registry
}

func (s *services) Close() error {
	return s.db.Close()
}

// open opens and migrates the configured database.
func (a *app) open(ctx context.Context) (*services, error) {
	db, err := database.Open(database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, failure(fmt.Errorf("opening database: %w", err))
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, failure(fmt.Errorf("migrating database: %w", err))
	}

	registry := device.NewRegistry(db.DB)
	registry.SetLogger(a.log)

	return &services{
		db:       db,
		store:    cas.NewStore(db.DB),
		registry: registry,
	}, nil
}

// withServices opens the database for the duration of fn.
func (a *app) withServices(ctx context.Context, fn func(s *services) error) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			a.log.Error("error closing database", "error", closeErr)
		}
	}()
	return failure(fn(s))
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.stdout, args...)
}
