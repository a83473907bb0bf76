package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"stemdeck.click/internal/audio"
	"stemdeck.click/internal/config"
	trackfs "stemdeck.click/internal/fs"
	"stemdeck.click/internal/history"
	"stemdeck.click/internal/player"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	fs               afero.Fs
	configManager    *config.ConfigManager
	backendFactory   audio.BackendFactory
	terminalDetector TerminalDetector
	historyDB        *sql.DB // Optional load history database
	cfg              *config.Config
	logFile          *lumberjack.Logger
}

// NewCLI creates a CLI working on the OS filesystem
func NewCLI() *CLI {
	return NewCLIWithFilesystem(trackfs.NewDefaultFactory().Production())
}

// NewCLIWithFilesystem creates a CLI that reads config and tracks from fs
func NewCLIWithFilesystem(fs afero.Fs) *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "stemdeck",
		Short: "Multi-track WAV sample player",
		Long: "stemdeck loads WAV and AIFF files into memory and plays them together " +
			"through one output stream, with per-track gain, pan and seeking.",
		SilenceUsage:      true,
		PersistentPreRunE: preRunE,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handled, err := handleVersionFlag(cmd); handled {
				return err
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "Audio backend (auto, malgo, oto, null)")
	rootCmd.PersistentFlags().Int("channels", 0, "Output channels, 1 or 2 (0 = from config)")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newBounceCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return &CLI{
		rootCmd:       rootCmd,
		fs:            fs,
		configManager: config.NewConfigManagerWithFilesystem(fs),
	}
}

type cliContextKey struct{}

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliContextKey{}, cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

// handleVersionFlag checks and handles the version flag
// Returns true if version was handled and processing should stop
func handleVersionFlag(cmd *cobra.Command) (bool, error) {
	version, _ := cmd.Flags().GetBool("version")
	if version {
		cmd.Printf("stemdeck version %s\n", Version)
		return true, nil
	}
	return false, nil
}

// preRunE loads configuration and sets up logging before any subcommand
func preRunE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	cli.cfg = cfg
	cli.setupLogging(cfg, cmd.ErrOrStderr())
	return nil
}

// loadAndValidateConfig loads configuration from flags and files, applies overrides, and validates
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	backend, _ := cmd.Flags().GetString("backend")
	channels, _ := cmd.Flags().GetInt("channels")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", configFile, err)
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backend != "" {
		cfg.AudioBackend = backend
		slog.Debug("backend override applied", "value", backend)
	}
	if channels != 0 {
		cfg.OutputChannels = channels
		slog.Debug("channels override applied", "value", channels)
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupLogging configures slog for stderr at the configured level and,
// when enabled, a rotating debug log file
func (c *CLI) setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := c.configManager.ResolveLogFilePath(cfg.FileLogging.Filename)

		// lumberjack writes through the OS, not c.fs
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			slog.Error("failed to create log directory", "path", logFilePath, "error", err)
		} else {
			c.logFile = &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			handlers = append(handlers, slog.NewTextHandler(c.logFile, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}
	}

	slog.SetDefault(slog.New(newTeeHandler(handlers...)))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"file_enabled", c.logFile != nil)
}

// initializeHistory opens the load history database if enabled in configuration
func (c *CLI) initializeHistory() {
	if c.historyDB != nil {
		return
	}
	if c.cfg == nil || c.cfg.History == nil || !c.cfg.History.Enabled {
		slog.Debug("load history disabled")
		return
	}

	dbPath := c.configManager.ResolveHistoryPath(c.cfg.History.DatabasePath)
	db, err := history.NewDatabase(dbPath)
	if err != nil {
		// history is optional, playback goes on without it
		slog.Warn("failed to open load history database", "path", dbPath, "error", err)
		return
	}

	c.historyDB = db
	slog.Debug("load history database ready", "path", dbPath)
}

// newSession builds a playback session from the active configuration
func (c *CLI) newSession(extra ...player.Option) (*player.Session, error) {
	panLaw, err := audio.ParsePanLaw(c.cfg.PanLaw)
	if err != nil {
		return nil, err
	}

	options := []player.Option{player.WithFilesystem(c.fs)}
	if c.backendFactory != nil {
		options = append(options, player.WithBackendFactory(c.backendFactory))
	}

	c.initializeHistory()
	if c.historyDB != nil {
		options = append(options, player.WithLoadHook(history.NewRecorder(c.historyDB).Hook()))
	}
	options = append(options, extra...)

	return player.NewSession(player.Options{
		SampleRate:   c.cfg.SampleRate,
		PeriodFrames: c.cfg.PeriodFrames,
		BackendType:  c.cfg.AudioBackend,
		DefaultGain:  float32(c.cfg.DefaultGain),
		PanLaw:       panLaw,
	}, options...), nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// version needs no config or audio
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "stemdeck version %s\n", Version)
		return 0
	}

	defer func() {
		if c.historyDB != nil {
			if err := c.historyDB.Close(); err != nil {
				slog.Error("error closing load history database", "error", err)
			}
			c.historyDB = nil
		}
		if c.logFile != nil {
			c.logFile.Close()
			c.logFile = nil
		}
	}()

	c.rootCmd.SetArgs(args[1:])
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}

	return 0
}
