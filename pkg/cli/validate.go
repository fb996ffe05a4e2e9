package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"

	"github.com/caresim-lab/caseflow/pkg/cli/config"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var appCfg config.AppConfig

	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the TOML configuration file",
		Flags: appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := appCfg.Load(); err != nil {
				return goerr.Wrap(err, "configuration is invalid")
			}
			cfg, err := appCfg.ToPipelineConfig()
			if err != nil {
				return goerr.Wrap(err, "configuration is invalid")
			}

			ok := color.New(color.FgGreen, color.Bold)
			_, _ = ok.Println("Configuration OK")
			fmt.Printf("  retry budget:      %d\n", cfg.RetryBudget)
			fmt.Printf("  backoff base:      %s\n", cfg.BackoffBase)
			fmt.Printf("  stage timeout:     %s\n", cfg.StageTimeout)
			fmt.Printf("  imaging keywords:  %d\n", len(cfg.ImagingIndicated))
			fmt.Printf("  urgency keywords:  %d\n", len(cfg.UrgencyKeywords))
			fmt.Printf("  knowledge docs:    %d\n", len(appCfg.Knowledge))
			return nil
		},
	}
}
