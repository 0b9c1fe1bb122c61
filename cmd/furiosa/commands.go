package main

import (
	"context"
	"fmt"
	"io"

	"github.com/furiosa-ai/furiosa-client-go/internal/app"
	"github.com/furiosa-ai/furiosa-client-go/internal/config"
	"github.com/furiosa-ai/furiosa-client-go/internal/domain"
	"github.com/furiosa-ai/furiosa-client-go/internal/logger"
	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
	"github.com/spf13/cobra"
)

// serviceClient is what the commands need from *furiosa.Client.
type serviceClient interface {
	app.Submitter
	ServerVersion(ctx context.Context) (furiosa.VersionInfo, error)
}

// cli carries what the commands share. Config is loaded on first use so that
// help output and client-only commands work with a broken environment.
type cli struct {
	cfg        *config.Config
	log        logger.Logger
	loadConfig func() (*config.Config, logger.Logger, error)
	newClient  func() (serviceClient, error)
}

// setup loads the config once; a cli built with cfg already set skips loading.
func (c *cli) setup() error {
	if c.cfg != nil {
		if c.log == nil {
			c.log = logger.NopLogger{}
		}
		return nil
	}
	if c.loadConfig == nil {
		return fmt.Errorf("no configuration available")
	}
	cfg, log, err := c.loadConfig()
	if err != nil {
		return err
	}
	c.cfg, c.log = cfg, log
	return nil
}

// client loads the config and builds the service client.
func (c *cli) client() (serviceClient, error) {
	if err := c.setup(); err != nil {
		return nil, err
	}
	return c.newClient()
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "furiosa",
		Short: "Submit models to the FuriosaAI compiler service",
		Long: `furiosa compiles, calibrates, quantizes and optimizes ONNX and TFLite
models with the FuriosaAI service. Credentials are read from
FURIOSA_ACCESS_KEY_ID and FURIOSA_SECRET_ACCESS_KEY or $HOME/.furiosa/credential.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCompileCmd(c),
		newBatchCmd(c),
		newCalibrateCmd(c),
		newQuantizeCmd(c),
		newOptimizeCmd(c),
		newVersionCmd(c),
	)
	return root
}

// withRunner builds a runner for one command invocation and closes it afterwards.
func (c *cli) withRunner(ctx context.Context, fn func(*app.Runner) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	runner, err := app.NewRunner(ctx, c.cfg, client, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			c.log.WarnObj("runner close failed", "error", err)
		}
	}()
	return fn(runner)
}

func printOutcome(w io.Writer, out domain.Outcome) {
	if !out.Succeeded() {
		fmt.Fprintf(w, "%s: failed: %v\n", out.Job.SourcePath, out.Err)
		return
	}
	suffix := ""
	if out.Cached {
		suffix = ", cached"
	}
	fmt.Fprintf(w, "%s -> %s (%d bytes%s)\n", out.Job.SourcePath, out.Job.OutputPath, out.ArtifactBytes, suffix)
}
