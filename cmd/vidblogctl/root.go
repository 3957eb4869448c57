package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/vidblog/internal/client"
)

type commandContext struct {
	serverFlag *string
	tokenFlag  *string
	jsonFlag   *bool
}

func newRootCommand() *cobra.Command {
	var serverFlag, tokenFlag string
	var jsonFlag bool

	ctx := &commandContext{serverFlag: &serverFlag, tokenFlag: &tokenFlag, jsonFlag: &jsonFlag}

	rootCmd := &cobra.Command{
		Use:           "vidblogctl",
		Short:         "Turn videos into blog posts through the vidblog API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", envOr("VIDBLOG_SERVER", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Bearer token (defaults to $VIDBLOG_TOKEN or the saved login)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print raw JSON")

	rootCmd.AddCommand(newRegisterCommand(ctx))
	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newTargetCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newPublishCommand(ctx))
	rootCmd.AddCommand(newWorkflowCommand(ctx))

	return rootCmd
}

func (c *commandContext) client() *client.Client {
	return client.New(*c.serverFlag, c.token())
}

func (c *commandContext) token() string {
	if t := strings.TrimSpace(*c.tokenFlag); t != "" {
		return t
	}
	if t := strings.TrimSpace(os.Getenv("VIDBLOG_TOKEN")); t != "" {
		return t
	}
	path, err := tokenPath()
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// tokenPath is where login --save keeps the token. $VIDBLOG_TOKEN_FILE wins.
func tokenPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("VIDBLOG_TOKEN_FILE")); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vidblog", "token"), nil
}

func saveToken(token string) (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
