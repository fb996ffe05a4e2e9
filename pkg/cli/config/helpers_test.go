package config_test

import (
	"context"

	"github.com/urfave/cli/v3"
)

// newFlagCommand wraps flags into a runnable command so tests can exercise
// flag parsing the way the real CLI does
func newFlagCommand(flags []cli.Flag) *cli.Command {
	return &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return nil
		},
	}
}
