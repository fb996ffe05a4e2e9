package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"

	"github.com/caresim-lab/caseflow/pkg/cli/config"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/repository/memory"
	"github.com/caresim-lab/caseflow/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var complaint string
	var imagePath string
	var patientName string
	var patientAge string
	var patientGender string
	var localEmbedder bool
	var appCfg config.AppConfig
	var geminiCfg config.Gemini
	var visionCfg config.Vision

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "complaint",
			Usage:       "Chief complaint text",
			Required:    true,
			Sources:     cli.EnvVars("CASEFLOW_COMPLAINT"),
			Destination: &complaint,
		},
		&cli.StringFlag{
			Name:        "image",
			Usage:       "Path to a medical image (PNG or JPEG) for the imaging stage",
			Sources:     cli.EnvVars("CASEFLOW_IMAGE"),
			Destination: &imagePath,
		},
		&cli.StringFlag{
			Name:        "patient-name",
			Usage:       "Patient name",
			Destination: &patientName,
		},
		&cli.StringFlag{
			Name:        "patient-age",
			Usage:       "Patient age",
			Destination: &patientAge,
		},
		&cli.StringFlag{
			Name:        "patient-gender",
			Usage:       "Patient gender",
			Destination: &patientGender,
		},
		&cli.BoolFlag{
			Name:        "local-embedder",
			Usage:       "Use the deterministic in-process embedder instead of the embedding API",
			Sources:     cli.EnvVars("CASEFLOW_LOCAL_EMBEDDER"),
			Destination: &localEmbedder,
		},
	}

	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, visionCfg.Flags()...)

	return &cli.Command{
		Name:  "run",
		Usage: "Process a single case and print the final report",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			deps, err := buildDeps(ctx, &geminiCfg, &visionCfg, &appCfg, localEmbedder)
			if err != nil {
				return goerr.Wrap(err, "failed to assemble pipeline dependencies")
			}

			input := usecase.RunInput{
				Complaint: complaint,
				Patient: model.PatientProfile{
					Name:   patientName,
					Age:    patientAge,
					Gender: patientGender,
				},
			}
			if imagePath != "" {
				// #nosec G304 - path is expected to be provided by CLI argument
				image, err := os.ReadFile(imagePath)
				if err != nil {
					return goerr.Wrap(err, "failed to read image file", goerr.V("path", imagePath))
				}
				input.Image = image
			}

			uc := usecase.New(memory.New(), deps)

			report, record, err := uc.RunSync(ctx, input)
			if err != nil {
				printFailure(record, err)
				return err
			}

			printReport(report)
			return nil
		},
	}
}

func printReport(report *model.FinalReport) {
	header := color.New(color.FgCyan, color.Bold)
	urgency := color.New(color.FgYellow, color.Bold)

	_, _ = header.Printf("Run %s completed\n", report.RunID)
	_, _ = urgency.Printf("Urgency: %s\n\n", report.Urgency)
	fmt.Println(report.Markdown)
}

func printFailure(record *model.CaseRecord, err error) {
	failed := color.New(color.FgRed, color.Bold)
	_, _ = failed.Fprintf(os.Stderr, "Run failed: %s\n", err)

	if record == nil {
		return
	}
	for _, ev := range record.History {
		fmt.Fprintf(os.Stderr, "  %s: %s %s\n", ev.Stage, ev.Outcome, ev.Reason)
	}
}
