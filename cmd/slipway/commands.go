package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
	"github.com/slipway-sh/slipway/internal/shell/aws"
	"github.com/slipway-sh/slipway/internal/shell/engine"
	"github.com/slipway-sh/slipway/internal/shell/store"
)

// errConfig marks failures before any provisioning started, so run can map
// them to a distinct exit code.
var errConfig = errors.New("configuration error")

var configPath string

func run() int {
	rootCmd := &cobra.Command{
		Use:           "slipway",
		Short:         "Provision a build pipeline feeding a load-balanced container service on AWS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "slipway.yaml", "Path to manifest file")

	rootCmd.AddCommand(upCmd, planCmd, downCmd, outputsCmd, statusCmd, versionCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "slipway: %v\n", err)
		if errors.Is(err, errConfig) {
			return ExitConfigError
		}
		return ExitError
	}
	return ExitSuccess
}

// =============================================================================
// Wiring
// =============================================================================

// app bundles everything a command needs once configuration is loaded.
type app struct {
	cfg    *Config
	logger *slog.Logger
	store  store.Store
}

func loadApp() (*app, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}

	dsn := cfg.Database.DSN
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("%w: failed to create state directory: %v", errConfig, err)
		}
	}
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open state database: %v", errConfig, err)
	}

	return &app{
		cfg:    cfg,
		logger: SetupLogger(cfg),
		store:  s,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close state database", "error", err)
	}
}

// newEngine builds the provisioning engine against the configured region.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, error) {
	clients, err := aws.NewClients(ctx, a.cfg.AWS.Region,
		a.cfg.AWS.AccessKeyID, a.cfg.AWS.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}

	provCfg := aws.DefaultConfig()
	provCfg.StartInitialBuild = a.cfg.AWS.StartInitialBuild
	topo := aws.NewTopology(clients, a.cfg.AWS.Region, provCfg, a.logger)

	return engine.New(a.store, topo, a.logger), nil
}

// stackName resolves the name commands address stacks by.
func (a *app) stackName() (string, error) {
	spec, err := a.cfg.BuildSpec()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errConfig, err)
	}
	if spec.Name == "" {
		return "", fmt.Errorf("%w: stack name is required (set stack.name or stack.repo_name)", errConfig)
	}
	return spec.Name, nil
}

// =============================================================================
// Commands
// =============================================================================

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision the topology, creating or converging every resource",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		spec, err := a.cfg.BuildSpec()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}

		eng, err := a.newEngine(cmd.Context())
		if err != nil {
			return err
		}

		st, err := eng.Up(cmd.Context(), spec)
		if err != nil {
			return err
		}

		fmt.Printf("stack %s is ready\n\n", st.Name)
		printOutputs(st.Outputs)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the ordered apply steps without touching the control plane",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		spec, err := a.cfg.BuildSpec()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		plan, err := stack.BuildPlan(spec)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}

		fmt.Printf("stack %s in %s (%s/%s@%s)\n\n",
			plan.Spec.Name, plan.Spec.Region,
			plan.Spec.RepoOwner, plan.Spec.RepoName, plan.Spec.Branch)
		for i, step := range plan.Steps {
			fmt.Printf("%d. [%s] %s\n", i+1, step.Kind, step.Description)
		}
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Tear down every resource the stack provisioned",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.stackName()
		if err != nil {
			return err
		}
		eng, err := a.newEngine(cmd.Context())
		if err != nil {
			return err
		}

		if err := eng.Down(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Printf("stack %s destroyed\n", name)
		return nil
	},
}

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Print the outputs of a ready stack",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.stackName()
		if err != nil {
			return err
		}
		st, err := a.store.GetStackByName(cmd.Context(), name)
		if err != nil {
			return err
		}
		printOutputs(st.Outputs)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stack status and recorded resources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.stackName()
		if err != nil {
			return err
		}
		st, err := a.store.GetStackByName(cmd.Context(), name)
		if err != nil {
			return err
		}
		printStatus(st)

		resources, err := a.store.ListResources(cmd.Context(), st.ReferenceID)
		if err != nil {
			return err
		}
		if len(resources) > 0 {
			fmt.Printf("\nresources (%d):\n", len(resources))
			for _, r := range resources {
				fmt.Printf("  %-18s %-24s %s\n", r.Kind, r.Name, r.ProviderID)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Printf("slipway %s (built %s)\n", Version, BuildTime)
		return nil
	},
}

// =============================================================================
// Output Formatting
// =============================================================================

func printOutputs(outputs map[string]string) {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", k, outputs[k])
	}
}

func printStatus(st *domain.Stack) {
	fmt.Printf("stack:   %s (%s)\n", st.Name, st.ReferenceID)
	fmt.Printf("status:  %s\n", st.Status)
	if st.CurrentStep != "" {
		fmt.Printf("step:    %s\n", st.CurrentStep)
	}
	if st.ErrorMessage != "" {
		fmt.Printf("error:   %s\n", st.ErrorMessage)
	}
	fmt.Printf("source:  %s/%s@%s\n", st.RepoOwner, st.RepoName, st.Branch)
	fmt.Printf("region:  %s\n", st.Region)
	fmt.Printf("updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
}
