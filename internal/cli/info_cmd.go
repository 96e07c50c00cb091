package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vizmigrate/internal/config"
	"vizmigrate/internal/dialect"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "info",
		Short:       "Show working directory, configuration and the registered chart migrations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.displayInfo()
		},
	}
}

func (a *app) displayInfo() error {
	workingDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("error getting working directory: %w", err)
	}

	configPath := a.configPath
	if configPath == "" {
		configPath = "config.yaml"
	}

	fmt.Fprintf(a.stdout, "working_dir: %s\n", workingDir)
	fmt.Fprintf(a.stdout, "project_dir: %s\n", projectDir)
	fmt.Fprintf(a.stdout, "config: %s\n", configPath)
	if cfg, err := config.LoadConfig(a.configPath); err != nil {
		fmt.Fprintf(a.stdout, "config_status: %v\n", err)
	} else {
		fmt.Fprintf(a.stdout, "database: %s\n", cfg.Database.Type)
	}

	fmt.Fprintln(a.stdout, "\nmigrations:")
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, source := range a.registry.SourceTypes() {
		t, _ := a.registry.BySource(source)
		fmt.Fprintf(tw, "  %s\t-> %s\n", source, strings.Join(t.Recipe().Targets(), ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "\n%s time grains:\n", dialect.Impala.Name)
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, g := range dialect.Impala.Grains() {
		expr, err := dialect.Impala.TimeGrainExpression("{col}", g.Duration)
		if err != nil {
			return err
		}
		duration := g.Duration
		if duration == "" {
			duration = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", duration, g.Name, expr)
	}
	return tw.Flush()
}
