package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/infrastructure/config"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/storage"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// options is shared by every subcommand; setup fills it before RunE
type options struct {
	cfg     *config.Config
	logger  *logging.Logger
	out     io.Writer
	format  string
	server  string
	timeout time.Duration
}

// NewRootCommand builds the hotexitctl command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "hotexitctl",
		Short: "Inspect and drive hot-exit sessions",
		Long: "hotexitctl reads, migrates and clears the saved hot-exit session on disk, " +
			"and asks a running hot-exit server to capture or restore windows.",
		SilenceUsage:      true,
		PersistentPreRunE: opts.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().String("data-dir", "", "Session data directory (default from config)")
	rootCmd.PersistentFlags().String("server", "", "Hot-exit server URL (default from config)")
	rootCmd.PersistentFlags().StringP("output", "o", formatYAML, "Output format: yaml or json")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout for server commands")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(
		newInspectCmd(opts),
		newClearCmd(opts),
		newMigrateCmd(opts),
		newCaptureCmd(opts),
		newRestoreCmd(opts),
		newStatusCmd(opts),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *options) setup(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case formatYAML, formatJSON:
	default:
		return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.HotExit.DataDir = dir
	}

	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = "http://" + cfg.Server.Addr()
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: true})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("hotexitctl configured",
		zap.String("data_dir", cfg.HotExit.DataDir),
		zap.String("server", server))

	o.cfg = cfg
	o.logger = logger
	o.out = cmd.OutOrStdout()
	o.format = format
	o.server = server
	o.timeout = timeout
	return nil
}

func (o *options) store() (*storage.Store, error) {
	policy, err := storage.ParseBackupPolicy(o.cfg.HotExit.BackupPolicy)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(o.cfg.HotExit.DataDir, policy, o.logger.Logger)
}
