package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/go-go-golems/stackup/pkg/container"
	"github.com/go-go-golems/stackup/pkg/metrics"
	"github.com/go-go-golems/stackup/pkg/orchestrator"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	RepoRoot    string
	Config      string
	DryRun      bool
	Timeout     time.Duration
	MetricsAddr string
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("repo-root", "", "Repository root (defaults to current directory)")
	root.PersistentFlags().String("config", "", "Path to config file (defaults to .stackup.yaml under repo-root)")
	root.PersistentFlags().Bool("dry-run", false, "Print what would run without starting anything")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "How long a service gets to stop before it is killed")
	root.PersistentFlags().String("metrics-addr", "", "Serve prometheus metrics on this address while running")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	flags := cmd.Root().PersistentFlags()
	repoRoot, err := flags.GetString("repo-root")
	if err != nil {
		return rootOptions{}, err
	}
	if repoRoot == "" {
		repoRoot, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	repoRoot, err = filepath.Abs(repoRoot)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := flags.GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath(repoRoot)
	} else if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(repoRoot, cfgPath)
	}

	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return rootOptions{}, err
	}
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return rootOptions{}, err
	}
	if timeout <= 0 {
		return rootOptions{}, errors.New("timeout must be > 0")
	}
	metricsAddr, err := flags.GetString("metrics-addr")
	if err != nil {
		return rootOptions{}, err
	}

	return rootOptions{
		RepoRoot:    repoRoot,
		Config:      cfgPath,
		DryRun:      dryRun,
		Timeout:     timeout,
		MetricsAddr: metricsAddr,
	}, nil
}

// ApplyLoggingEnv lets LOG_LEVEL and LOG_FILE stand in for the logging flags
// when those were not given on the command line.
func ApplyLoggingEnv(cmd *cobra.Command) error {
	env := config.LoadEnv()
	fs := cmd.Root().PersistentFlags()
	set := func(name, value string) error {
		f := fs.Lookup(name)
		if f == nil || f.Changed || value == "" {
			return nil
		}
		return errors.Wrapf(fs.Set(name, value), "apply %s from environment", name)
	}
	if err := set("log-level", env.LogLevel); err != nil {
		return err
	}
	if config.LogFileSet() {
		return set("log-file", env.LogFile)
	}
	return nil
}

// newOrchestrator wires the config, environment, docker client and metrics
// into an orchestrator. close must be called when the command ends.
func newOrchestrator(cmd *cobra.Command, flags orchestrator.Flags) (o *orchestrator.Orchestrator, closeFn func(), err error) {
	opts, err := getRootOptions(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadOptional(opts.Config)
	if err != nil {
		return nil, nil, err
	}
	env := config.LoadEnv()
	cfg.ApplyEnv(env)
	flags.DryRun = flags.DryRun || opts.DryRun

	closers := []func(){}
	closeFn = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var rt container.Runtime
	if docker, derr := container.NewDockerRuntime(); derr != nil {
		log.Debug().Err(derr).Msg("docker client unavailable")
	} else {
		rt = docker
		closers = append(closers, func() { _ = docker.Close() })
	}

	var collector metrics.Collector
	if opts.MetricsAddr != "" {
		prom := metrics.NewPrometheus("stackup")
		ctx, cancel := context.WithCancel(cmd.Context())
		closers = append(closers, cancel)
		if err := prom.Serve(ctx, opts.MetricsAddr); err != nil {
			closeFn()
			return nil, nil, err
		}
		collector = prom
	}

	o, err = orchestrator.New(orchestrator.Options{
		RepoRoot:        opts.RepoRoot,
		Config:          cfg,
		Env:             env,
		Flags:           flags,
		Runtime:         rt,
		Compose:         composeFor(cfg, opts.RepoRoot),
		Metrics:         collector,
		ShutdownTimeout: opts.Timeout,
		Stdout:          cmd.OutOrStdout(),
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return o, closeFn, nil
}

func composeFor(cfg *config.File, repoRoot string) *container.Compose {
	return &container.Compose{
		Dir:      repoRoot,
		File:     cfg.Compose.File,
		Command:  cfg.Compose.Command,
		Fallback: cfg.Compose.Fallback,
		Run:      container.ExecRun,
	}
}

// errReported marks errors the console reporter has already printed.
type errReported struct{ error }

func (e errReported) Unwrap() error { return e.error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return errReported{err}
}

// ExitCode maps a command error to the process exit code. A user interrupt
// exits 0.
func ExitCode(err error, stderr io.Writer) int {
	if err == nil || errors.Is(err, orchestrator.ErrInterrupted) {
		return 0
	}
	var r errReported
	if !errors.As(err, &r) {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}
