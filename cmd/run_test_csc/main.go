// Command run_test_csc runs the reference Test component as a standalone
// process. See SPEC_FULL.md §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lsst-ts/salobj-go/csc/testcsc"
	"github.com/lsst-ts/salobj-go/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var index int32
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run_test_csc",
		Short: "Run the reference Test component",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("parsing --log-level: %w", err)
			}
			log := logrus.New()
			log.SetLevel(level)
			entry := log.WithField("bin", "run_test_csc")

			dom, err := domain.New()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			entry.Infof("running Test CSC with index %d", index)
			component, err := testcsc.New(ctx, dom, index, entry)
			if err != nil {
				return err
			}
			defer component.Close()

			if err := component.Start(ctx); err != nil {
				return err
			}

			entry.Info("running")
			<-ctx.Done()
			entry.Info("shutting down")
			return nil
		},
	}

	cmd.Flags().Int32VarP(&index, "index", "i", 0, "component index")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")

	return cmd
}
