// Command tickbench runs the tick constructs over a range of numbers and reports how the loop behaved
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/casualjim/tick"
	"github.com/casualjim/tick/steps"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("tick")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "tickbench",
		Short: "Exercise flows, iterators and queues on a single loop",
		Long: `tickbench doubles the numbers 0..items-1 with the selected construct
and prints the sum of the results together with the number of loop turns it took.

Every flag can be set through the environment, --batch-size is TICK_BATCH_SIZE.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := logrus.InfoLevel
			if v.GetBool("verbose") {
				level = logrus.DebugLevel
			}
			log := tick.GoLog(cmd.ErrOrStderr(), "tickbench", level)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			if timeout := v.GetDuration("timeout"); timeout > 0 {
				var tcancel context.CancelFunc
				ctx, tcancel = context.WithTimeout(ctx, timeout)
				defer tcancel()
			}

			mode := v.GetString("mode")
			runs := []string{mode}
			if mode == "all" {
				runs = modes
			}
			for _, m := range runs {
				rep, err := runBench(ctx, benchConfig{
					Mode:      m,
					Items:     v.GetInt("items"),
					BatchSize: v.GetInt("batch-size"),
				}, log)
				if err != nil {
					log.WithError(err).WithField("mode", m).Error("benchmark failed")
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rep)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("mode", "flow", fmt.Sprintf("construct to run, one of %v or all", modes))
	flags.Int("items", 1000, "number of items to process")
	flags.Int("batch-size", steps.DefaultBatchSize, "synchronous advances before yielding to the loop, 0 never yields")
	flags.Duration("timeout", 0, "abort when the run takes longer than this")
	flags.BoolP("verbose", "v", false, "log at debug level")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd
}
