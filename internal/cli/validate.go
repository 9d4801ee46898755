package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/httpscenario"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(g, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the test configuration (YAML or JSON)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func validateConfig(g *globalOptions, path string) error {
	logger, err := g.logger()
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	cfg, err := loadConfig(path)
	if err == nil {
		err = checkBuild(cfg)
	}
	if err != nil {
		logger.Error("invalid configuration", zap.String("config", path), zap.Error(err))
		return &exitError{code: ExitError, err: err}
	}

	execCfg, _ := cfg.ExecutorConfig()
	name := cfg.Name
	if name == "" {
		name = path
	}
	fmt.Fprintf(g.stdout, "✓ %s is valid: %s, %d stage(s), %d request(s), %d threshold metric(s)\n",
		name, execCfg.Type, len(execCfg.Stages), len(cfg.Scenario.Requests), len(cfg.Thresholds))
	return nil
}

// checkBuild converts everything a run would convert, so validate catches
// what Validate alone does not.
func checkBuild(cfg *config.TestConfig) error {
	if _, err := cfg.ExecutorConfig(); err != nil {
		return err
	}
	if _, err := cfg.ThresholdSpecs(); err != nil {
		return err
	}
	if _, err := cfg.ClientConfig(); err != nil {
		return err
	}
	def, err := cfg.ScenarioDefinition()
	if err != nil {
		return err
	}
	if _, err := summaryOutputs(cfg.Summary.Outputs, &globalOptions{noColor: true}); err != nil {
		return err
	}
	return httpscenario.Validate(def)
}
