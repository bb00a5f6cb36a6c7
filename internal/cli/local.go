package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/migration"
)

// ErrNoSession is returned when a command needs a saved session and none exists
var ErrNoSession = errors.New("no saved session")

// ============================================================================
// inspect
// ============================================================================

func newInspectCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the saved session",
		Long:  "Summarize the session file on disk. --full prints the whole session including document content.",
		Args:  cobra.NoArgs,
		RunE:  opts.runInspect,
	}
	cmd.Flags().Bool("backup", false, "Read the previous session (session.prev.json) instead")
	cmd.Flags().Bool("full", false, "Print the full session instead of a summary")
	return cmd
}

func (o *options) runInspect(cmd *cobra.Command, _ []string) error {
	backup, _ := cmd.Flags().GetBool("backup")
	full, _ := cmd.Flags().GetBool("full")

	store, err := o.store()
	if err != nil {
		return err
	}

	read, path := store.Read, store.Path()
	if backup {
		read, path = store.ReadBackup, store.BackupPath()
	}
	data, err := read(cmd.Context())
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w at %s", ErrNoSession, path)
	}

	if full {
		return o.print(data)
	}
	return o.print(summarize(data, path, o.cfg.HotExit.MaxAgeDays, time.Now()))
}

// ============================================================================
// clear
// ============================================================================

type clearResult struct {
	Cleared bool   `yaml:"cleared" json:"cleared"`
	Path    string `yaml:"path" json:"path"`
}

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved session",
		Long:  "Delete session.json. The backup is kept. Clearing when no session exists succeeds.",
		Args:  cobra.NoArgs,
		RunE:  opts.runClear,
	}
}

func (o *options) runClear(cmd *cobra.Command, _ []string) error {
	store, err := o.store()
	if err != nil {
		return err
	}
	if err := store.Delete(cmd.Context()); err != nil {
		return err
	}
	return o.print(clearResult{Cleared: true, Path: store.Path()})
}

// ============================================================================
// migrate
// ============================================================================

type migrateResult struct {
	Path     string `yaml:"path" json:"path"`
	From     int    `yaml:"from" json:"from"`
	To       int    `yaml:"to" json:"to"`
	Migrated bool   `yaml:"migrated" json:"migrated"`
	DryRun   bool   `yaml:"dry_run" json:"dry_run"`
}

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the saved session to the current schema",
		Long: "Run the schema migrations on session.json and write the result back. " +
			"The previous file is kept as the backup.",
		Args: cobra.NoArgs,
		RunE: opts.runMigrate,
	}
	cmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	return cmd
}

func (o *options) runMigrate(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	store, err := o.store()
	if err != nil {
		return err
	}
	data, err := store.Read(cmd.Context())
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w at %s", ErrNoSession, store.Path())
	}

	result := migrateResult{
		Path:   store.Path(),
		From:   data.Version,
		To:     data.Version,
		DryRun: dryRun,
	}
	migrated, err := migration.Migrate(data)
	if err != nil {
		return err
	}
	if migrated.Version == data.Version {
		return o.print(result)
	}
	result.To = migrated.Version
	result.Migrated = true

	if !dryRun {
		if err := store.Write(cmd.Context(), migrated); err != nil {
			return fmt.Errorf("write migrated session: %w", err)
		}
		o.logger.Info("Session migrated",
			zap.Int("from", result.From),
			zap.Int("to", result.To))
	}
	return o.print(result)
}
