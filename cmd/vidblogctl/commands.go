package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/vidblog/internal/client"
)

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var password string
	var save bool
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := ctx.client().Register(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return printToken(cmd, token, save)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	cmd.Flags().BoolVar(&save, "save", false, "Save the token for later commands")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var password string
	var save bool
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and print a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := ctx.client().Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return printToken(cmd, token, save)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	cmd.Flags().BoolVar(&save, "save", false, "Save the token for later commands")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func printToken(cmd *cobra.Command, token string, save bool) error {
	out := cmd.OutOrStdout()
	if !save {
		fmt.Fprintln(out, token)
		return nil
	}
	path, err := saveToken(token)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintf(out, "Token saved to %s\n", path)
	return nil
}

func newTargetCommand(ctx *commandContext) *cobra.Command {
	var target client.Target
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Set the WordPress site jobs publish to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target.AppPassword == "" {
				target.AppPassword = os.Getenv("VIDBLOG_APP_PASSWORD")
			}
			if err := ctx.client().PutPublishTarget(cmd.Context(), target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Publish target set to %s\n", strings.TrimRight(target.SiteURL, "/"))
			return nil
		},
	}
	cmd.Flags().StringVar(&target.SiteURL, "site", "", "WordPress site URL")
	cmd.Flags().StringVar(&target.Username, "user", "", "WordPress username")
	cmd.Flags().StringVar(&target.AppPassword, "app-password", "", "Application password (or $VIDBLOG_APP_PASSWORD)")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var publish, async bool
	cmd := &cobra.Command{
		Use:   "submit <video-url>",
		Short: "Create a job for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().CreateJob(cmd.Context(), args[0], publish, async)
			if err != nil {
				return err
			}
			return ctx.printJob(cmd, job)
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish once the blog is generated")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the job for a worker")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <job-id>",
		Short: "Download, extract and transcribe a job's video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().ProcessJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return ctx.printJob(cmd, job)
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return ctx.printJob(cmd, job)
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var titleHint, transcriptFile string
	cmd := &cobra.Command{
		Use:   "generate [job-id]",
		Short: "Generate the blog for a job, or from a transcript file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			if transcriptFile != "" {
				b, err := os.ReadFile(transcriptFile)
				if err != nil {
					return err
				}
				job, err := c.GenerateInline(cmd.Context(), string(b), titleHint)
				if err != nil {
					return err
				}
				return ctx.printJob(cmd, job)
			}
			if len(args) == 0 {
				return fmt.Errorf("a job id or --transcript is required")
			}
			job, err := c.GenerateJob(cmd.Context(), args[0], titleHint)
			if err != nil {
				return err
			}
			return ctx.printJob(cmd, job)
		},
	}
	cmd.Flags().StringVar(&titleHint, "title", "", "Title hint for the generator")
	cmd.Flags().StringVar(&transcriptFile, "transcript", "", "Generate from this transcript file instead of a job")
	return cmd
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "publish <job-id>",
		Short: "Publish a generated blog to the saved target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().PublishJob(cmd.Context(), args[0], nil, status)
			if err != nil {
				return err
			}
			return ctx.printJob(cmd, job)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Remote post status: publish or draft")
	return cmd
}

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	var req client.WorkflowRequest
	cmd := &cobra.Command{
		Use:   "workflow <video-url>",
		Short: "Run every stage for a video in one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SourceURL = args[0]
			job, err := ctx.client().Workflow(cmd.Context(), req)
			if err != nil {
				var wf *client.WorkflowFailure
				if errors.As(err, &wf) {
					_ = ctx.printJob(cmd, wf.Job)
					return fmt.Errorf("stage %s failed: %w", wf.FailedStage, wf.APIError)
				}
				return err
			}
			return ctx.printJob(cmd, job)
		},
	}
	cmd.Flags().BoolVar(&req.Publish, "publish", false, "Publish after generating")
	cmd.Flags().StringVar(&req.TitleHint, "title", "", "Title hint for the generator")
	cmd.Flags().StringVar(&req.Status, "status", "", "Remote post status: publish or draft")
	return cmd
}
