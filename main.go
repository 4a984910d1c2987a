package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"library-ledger/internal/config"
	"library-ledger/library"
)

// app carries what every subcommand shares. The ledger is opened on first
// use so that help and completion never touch the database.
type app struct {
	configPath string
	dbPath     string
	jsonOut    bool

	cfg *config.Config
	mgr *library.LibraryManager
	out io.Writer
	log io.Writer
}

func (a *app) manager() (*library.LibraryManager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	logger := cfg.Logger(a.log)

	mgr, err := library.NewLibraryManager(cfg.Database.Path,
		library.WithLogger(logger),
		library.WithFinePolicy(cfg.FinePolicy()),
		library.WithDefaultLoanDays(cfg.Loans.DefaultDays),
	)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	a.cfg, a.mgr = cfg, mgr
	return mgr, nil
}

func (a *app) close() error {
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Close()
	a.mgr = nil
	return err
}

// run adapts a handler that needs the ledger into a cobra RunE. The ledger
// is closed when the handler returns, on error paths too.
func (a *app) run(fn func(ctx context.Context, mgr *library.LibraryManager, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		mgr, err := a.manager()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd.Context(), mgr, args)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, log: errOut}

	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Catalog books and members and track loans and fines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "path to the YAML config (created with defaults when missing)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides database.path)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newBookCmd(a),
		newMemberCmd(a),
		newIssueCmd(a),
		newReturnCmd(a),
		newLoansCmd(a),
		newFineCmd(a),
		newStatsCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for requests the ledger refused and 1 for everything else.
func exitCode(err error) int {
	if library.IsExpected(err) {
		return 2
	}
	return 1
}

// invalidArgument rejects bad command-line input the way the ledger rejects
// bad calls, so it exits like any other refused request.
func invalidArgument(format string, args ...any) error {
	return &library.Error{Code: library.CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidArgument("invalid %s ID: %s", kind, s)
	}
	return id, nil
}
