// Command meshrepair converts one STEP model into a validated STL mesh.
// It exits 0 when the final mesh passed validation and 1 otherwise.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mesh-orchestrator/config"
	"mesh-orchestrator/core/models"
	"mesh-orchestrator/core/spec"
	"mesh-orchestrator/core/supervisor"
	"mesh-orchestrator/providers"
	"mesh-orchestrator/providers/meshkit"
)

// errRunFailed signals a completed run whose mesh did not pass. The result
// has already been printed.
var errRunFailed = errors.New("run failed")

type options struct {
	workspace   string
	policy      string
	parser      string
	gmshPath    string
	gmshTimeout time.Duration
	verbose     bool
}

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	var logger *zap.Logger

	cmd := &cobra.Command{
		Use:   "meshrepair [model.step]",
		Short: "Mesh a STEP model and repair it until it validates",
		Long: `Parses the model once, meshes it, then validates and repairs the mesh
until it passes or the iteration budget is exhausted. The run result is
printed as JSON on stdout.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			cfg.OutputPaths = []string{"stderr"}
			var err error
			logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := repair(ctx, opts, args[0], logger)
			if err != nil {
				return err
			}
			return report(stdout, stderr, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.workspace, "workspace", "w", "workspace", "directory the run writes its geometry and meshes into")
	flags.StringVarP(&opts.policy, "policy", "p", os.Getenv("POLICY_FILE"), "YAML run policy file")
	flags.StringVar(&opts.parser, "parser", envOr("PARSER_BACKEND", config.BackendGmsh), "parser backend (step|gmsh)")
	flags.StringVar(&opts.gmshPath, "gmsh", envOr("GMSH_PATH", "gmsh"), "gmsh executable")
	flags.DurationVar(&opts.gmshTimeout, "gmsh-timeout", 10*time.Minute, "limit for a single gmsh invocation")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

// repair runs the controller once over input
func repair(ctx context.Context, opts *options, input string, logger *zap.Logger) (models.RunResult, error) {
	if _, err := os.Stat(input); err != nil {
		return models.RunResult{}, fmt.Errorf("input model: %w", err)
	}

	rs, err := loadRunSpec(opts.policy)
	if err != nil {
		return models.RunResult{}, err
	}

	backends := providers.Backends{
		Parser:           opts.parser,
		Mesher:           config.BackendGmsh,
		GmshPath:         opts.gmshPath,
		GmshTimeout:      opts.gmshTimeout,
		ScratchRoot:      filepath.Join(opts.workspace, ".scratch"),
		AspectRatioLimit: meshkit.DefaultAspectRatioLimit,
	}.WithRunSpec(rs)

	set, err := providers.NewSet(backends, logger)
	if err != nil {
		return models.RunResult{}, err
	}
	sup, err := supervisor.New(set, rs.Policy, logger)
	if err != nil {
		return models.RunResult{}, err
	}

	if err := os.MkdirAll(opts.workspace, 0o755); err != nil {
		return models.RunResult{}, fmt.Errorf("failed to create workspace: %w", err)
	}
	return sup.Run(ctx, input, opts.workspace)
}

func loadRunSpec(path string) (*spec.RunSpec, error) {
	if path == "" {
		return spec.ParseRunSpec("")
	}
	return spec.LoadRunSpec(path)
}

// report prints the result and maps it to the command's error
func report(stdout, stderr io.Writer, result models.RunResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(stdout, string(out))

	switch {
	case result.Succeeded():
		return nil
	case result.Error != "":
		fmt.Fprintln(stderr, "Error:", result.Error)
	case result.LastReport != nil:
		fmt.Fprintf(stderr, "Mesh still failing after %d iterations: %v\n", result.IterationsUsed, result.LastReport.Failures)
	}
	return errRunFailed
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
