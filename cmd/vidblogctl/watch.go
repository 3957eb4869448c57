package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/vidblog/internal/client"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/poller"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var maxRetries int
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			out := cmd.OutOrStdout()
			jobID := args[0]

			var lastStep pipeline.ProcessingStep
			p := poller.New(func(qctx context.Context) (client.Job, error) {
				job, err := c.GetJob(qctx, jobID)
				if err != nil {
					return client.Job{}, err
				}
				return *job, nil
			}, poller.Options[client.Job]{
				Interval:   interval,
				MaxRetries: maxRetries,
				OnUpdate: func(job client.Job) {
					if step := job.ProcessingStep(); step != lastStep {
						lastStep = step
						fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), step)
					}
				},
				OnError: func(err error, n int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "status query failed (%d/%d): %v\n", n, maxRetries, err)
				},
			})

			p.Start(cmd.Context())
			defer p.Stop()

			job, err := p.Wait(cmd.Context())
			if err != nil {
				return err
			}
			if job.JobID == "" {
				return fmt.Errorf("no status received for job %s", jobID)
			}
			if err := ctx.printJob(cmd, &job); err != nil {
				return err
			}
			if job.ProcessingStep() == pipeline.StepFailed {
				return fmt.Errorf("job %s failed", jobID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "Time between status queries")
	cmd.Flags().IntVar(&maxRetries, "max-retries", poller.DefaultMaxRetries, "Give up after this many failed queries in a row")
	return cmd
}
