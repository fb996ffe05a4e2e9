package config

import (
	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/service/vision"
	"github.com/urfave/cli/v3"
)

// Vision holds configuration for the image classification client
type Vision struct {
	token   string
	modelID string
}

// Flags returns CLI flags for vision classifier configuration
func (v *Vision) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vision-api-token",
			Usage:       "HuggingFace API token for image classification",
			Sources:     cli.EnvVars("CASEFLOW_VISION_API_TOKEN"),
			Destination: &v.token,
		},
		&cli.StringFlag{
			Name:        "vision-model",
			Usage:       "Image classification model ID",
			Value:       vision.DefaultModel,
			Sources:     cli.EnvVars("CASEFLOW_VISION_MODEL"),
			Destination: &v.modelID,
		},
	}
}

// Configure creates the vision classifier client
func (v *Vision) Configure() (interfaces.VisionClassifier, error) {
	return vision.New(v.token, vision.WithModel(v.modelID))
}
