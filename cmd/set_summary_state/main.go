// Command set_summary_state drives a running component through the
// sequence of lifecycle commands needed to reach a target summary state.
// See SPEC_FULL.md §6 and §4.H.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	salobj "github.com/lsst-ts/salobj-go"
	"github.com/lsst-ts/salobj-go/internal/domain"
	"github.com/lsst-ts/salobj-go/internal/envelope"
	"github.com/lsst-ts/salobj-go/internal/lifecycle"
)

const requestTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var componentName string
	var index int32
	var desiredStateName string
	var configOverride string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "set_summary_state",
		Short: "Drive a component to a target summary state",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("parsing --log-level: %w", err)
			}
			log := logrus.New()
			log.SetLevel(level)
			entry := log.WithField("bin", "set_summary_state")

			desired, err := lifecycle.ParseState(desiredStateName)
			if err != nil {
				return err
			}

			dom, err := domain.New()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout*4)
			defer cancel()

			remote, err := salobj.NewRemote(ctx, dom, componentName, index, salobj.WriteCommands, entry)
			if err != nil {
				return err
			}
			defer remote.Close()

			entry.Debug("getting current state")
			sample, ok, err := remote.PopEventBack(ctx, "logevent_summaryState", false, requestTimeout)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no summary state received from %s within %s", componentName, requestTimeout)
			}
			current := lifecycle.StateFromWireValue(envelope.IntField(sample.Fields, "summaryState"))
			entry.Debugf("current state: %s", current)

			commands, err := lifecycle.Plan(current, desired)
			if err != nil {
				return err
			}
			if len(commands) == 0 {
				entry.Info("already in the desired state")
				return nil
			}

			for _, lifecycleCmd := range commands {
				topicName := "command_" + string(lifecycleCmd)
				params := map[string]any{}
				if lifecycleCmd == lifecycle.Start {
					params["configurationOverride"] = configOverride
				}

				entry.Debugf("sending command: %s", topicName)
				ack, err := remote.RunCommand(ctx, topicName, params, requestTimeout, true)
				if err != nil {
					return err
				}
				if !ack.Ack.IsGood() {
					return fmt.Errorf("command %s failed: %s", topicName, ack.Result)
				}
				entry.Info("command ok")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&componentName, "component", "c", "", "component name")
	cmd.Flags().Int32VarP(&index, "index", "i", 0, "component index")
	cmd.Flags().StringVarP(&desiredStateName, "state", "s", "", "desired state: Offline|Standby|Disabled|Enabled")
	cmd.Flags().StringVar(&configOverride, "config", "", "configuration override passed to command_start")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	cmd.MarkFlagRequired("component")
	cmd.MarkFlagRequired("state")

	return cmd
}
