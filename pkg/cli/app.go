package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mchmarny/triage/pkg/config"
	"github.com/mchmarny/triage/pkg/data"
	"github.com/mchmarny/triage/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "triage"
	appConfigKey = "app-config"
	homeEnvVar   = "TRIAGE_HOME"

	formatCSV  = "csv"
	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName  = "debug"
	configFlagName = "config"
	dbFlagName     = "db"
	formatFlagName = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	logLevel = new(slog.LevelVar)
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(os.Stderr, false)

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir    string
	DBPath string
	Debug  bool
	Format string
	Config *config.Config
	DB     *sql.DB
}

func getConfig(c *cli.Command) *appConfig {
	return c.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Prioritise patient reviews by additive condition risk scores",
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:    configFlagName,
				Usage:   "Path to the config directory (default: $HOME/.triage)",
				Sources: cli.EnvVars(homeEnvVar),
			},
			&cli.StringFlag{
				Name:  dbFlagName,
				Usage: "Path to the Sqlite database file holding weight profiles (default: <config>/data.db)",
			},
			&cli.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [csv, json, yaml] (default: from config, csv)",
			},
		},
		Commands: []*cli.Command{
			newScoreCmd(),
			newWeightsCmd(),
			newServerCmd(),
			newResetCmd(),
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			debug := c.Bool(debugFlagName)
			if debug {
				logLevel.Set(slog.LevelDebug)
			}

			dir := c.String(configFlagName)
			if dir == "" {
				dir = getHomeDir()
			}

			conf, err := config.ReadOrCreate(dir)
			if err != nil {
				return ctx, fmt.Errorf("reading config: %w", err)
			}
			if !debug {
				logLevel.Set(logging.ParseLogLevel(conf.LogLevel))
			}

			format, err := parseFormat(c.String(formatFlagName), conf.Format)
			if err != nil {
				return ctx, err
			}

			dbPath := c.String(dbFlagName)
			if dbPath == "" {
				dbPath = filepath.Join(dir, data.DataFileName)
			}

			if err := data.Init(dbPath); err != nil {
				return ctx, fmt.Errorf("initializing database: %w", err)
			}

			db, err := data.GetDB(dbPath)
			if err != nil {
				return ctx, fmt.Errorf("opening database: %w", err)
			}

			c.Metadata[appConfigKey] = &appConfig{
				Dir:    dir,
				DBPath: dbPath,
				Debug:  debug,
				Format: format,
				Config: conf,
				DB:     db,
			}
			return ctx, nil
		},
		After: func(_ context.Context, c *cli.Command) error {
			if cfg, ok := c.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func initLogging(w io.Writer, debug bool) {
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	h := logging.NewCLIHandler(w, logLevel)
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		h = h.WithoutColor()
	}
	slog.SetDefault(slog.New(h))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func parseFormat(flag, configured string) (string, error) {
	f := flag
	if f == "" {
		f = configured
	}
	switch f {
	case "", formatCSV:
		return formatCSV, nil
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (valid: csv, json, yaml)", f)
	}
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("created app dir", "path", dir)
	}
	return dir
}

func getWriter(c *cli.Command) io.Writer {
	if w := c.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func getReader(c *cli.Command) io.Reader {
	if r := c.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

// encode writes v as JSON or YAML. CSV callers handle their own output.
func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
