// Package main is the entrypoint for the hoard CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eugenetaranov/hoard/internal/checksum"
	"github.com/eugenetaranov/hoard/internal/command"
	"github.com/eugenetaranov/hoard/internal/config"
	"github.com/eugenetaranov/hoard/internal/executor"
	"github.com/eugenetaranov/hoard/internal/layout"
	"github.com/eugenetaranov/hoard/internal/logsink"
	"github.com/eugenetaranov/hoard/internal/output"
	"github.com/eugenetaranov/hoard/internal/result"
	"github.com/eugenetaranov/hoard/internal/runner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var exitFunc = os.Exit

// errUsage is returned when no action was requested.
var errUsage = errors.New("no action requested, use --run")

func main() {
	exitFunc(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(viper.New(), stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return runner.ExitOK
	}

	// Run failures were already reported on the console.
	var exitErr *runner.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return runner.ExitCode(err)
}

func newRootCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hoard",
		Short: "Hoard - archive, verify and clean logs across hosts",
		Long: `Hoard pulls log folders from many hosts into a local archive tree,
verifies every copied file against a checksum taken on the host, and only
then removes aged files from the hosts.

Examples:
  hoard --run
  hoard --run --clean --config /etc/hoard.yaml
  hoard --run --debug`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !v.GetBool("run") {
				_ = cmd.Usage()
				return errUsage
			}
			return runHoard(v, stdout, runOptions(cmd))
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "hoard.yaml", "Path to the configuration file")
	flags.BoolP("debug", "d", false, "Enable debug output with commands and captured output")
	flags.Bool("no-color", false, "Disable colored output")

	rootCmd.Flags().BoolP("run", "r", false, "Archive every source and verify the copies")
	rootCmd.Flags().BoolP("clean", "c", false, "Remove aged files from the sources after verification")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	_ = v.BindPFlag("no-color", flags.Lookup("no-color"))
	_ = v.BindPFlag("run", rootCmd.Flags().Lookup("run"))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: cannot load .env:", err)
		}
		v.SetEnvPrefix("HOARD")
		v.AutomaticEnv()
	}

	rootCmd.AddCommand(newValidateCmd(v, stdout))
	rootCmd.AddCommand(newCommandsCmd(v, stdout))

	return rootCmd
}

// runOptions reads the requested actions. Cleanup is taken from the
// command line only, never from the environment.
func runOptions(cmd *cobra.Command) runner.Options {
	clean, _ := cmd.Flags().GetBool("clean")
	return runner.Options{Clean: clean}
}

func runHoard(v *viper.Viper, stdout io.Writer, opts runner.Options) error {
	cfg, err := config.Load(v.GetString("config"), v)
	if err != nil {
		return err
	}

	alg, err := checksum.Lookup(cfg.HashAlgorithm)
	if err != nil {
		return err
	}

	out := output.New(stdout)
	out.SetColor(!v.GetBool("no-color"))
	out.SetDebug(v.GetBool("debug"))

	run := result.NewRun()

	orch := executor.New(executor.ExecLauncher{}, layout.New(cfg.TargetFolder), alg)
	orch.Output = out
	orch.Logger = newLogger(v.GetBool("debug"))
	orch.PollInterval = cfg.PollInterval
	orch.Timeout = cfg.GetTimeout()

	if cfg.Logging {
		sink, err := logsink.Open(afero.NewOsFs(), cfg.LogFile.Stdout, cfg.LogFile.Stderr, run.ID)
		if err != nil {
			return err
		}
		defer sink.Close()
		orch.Sink = sink
		out.Info("Logging results to %s and %s", cfg.LogFile.Stdout, cfg.LogFile.Stderr)
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping remote processes...")
			cancel()
		case <-ctx.Done():
		}
	}()

	ctrl := runner.New(cfg, orch, run, opts)
	if _, err := ctrl.Run(ctx); err != nil {
		out.Error("%v", err)
		return err
	}

	return nil
}

func newLogger(debug bool) *slog.Logger {
	if !debug {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newValidateCmd validates the configuration without running anything
func newValidateCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load and validate the configuration without contacting any host.

This checks for:
  - Valid YAML syntax
  - Required fields (target_folder, sources)
  - Duplicate hosts
  - Known hash algorithm and verify method`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("config")
			cfg, err := config.Load(path, v)
			if err != nil {
				fmt.Fprintf(stdout, "FAIL: %s - %v\n", path, err)
				return err
			}
			if _, err := checksum.Lookup(cfg.HashAlgorithm); err != nil {
				fmt.Fprintf(stdout, "FAIL: %s - %v\n", path, err)
				return err
			}

			fmt.Fprintf(stdout, "OK: %s\n", path)
			fmt.Fprintf(stdout, "\n%d source(s), archive root %s\n", len(cfg.Sources), cfg.TargetFolder)
			return nil
		},
	}
}

// newCommandsCmd prints the command each operation would run per host
func newCommandsCmd(v *viper.Viper, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Show the commands each operation would run",
		Long:  `Print the external command built for every operation kind and host, without running anything.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v.GetString("config"), v)
			if err != nil {
				return err
			}
			alg, err := checksum.Lookup(cfg.HashAlgorithm)
			if err != nil {
				return err
			}

			b := layout.New(cfg.TargetFolder)
			for _, kind := range command.Kinds() {
				fmt.Fprintf(stdout, "%s:\n", kind)
				for _, src := range cfg.Sources {
					c, err := command.Build(kind, command.Target{
						Source:    src,
						LocalPath: b.Path(src.Host, src.Folder),
						Algorithm: alg,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "  %s: %s\n", src.Host, c)
				}
			}
			return nil
		},
	}
}
