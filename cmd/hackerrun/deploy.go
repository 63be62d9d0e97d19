package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hackerrun/hackerrun/internal/config"
	"github.com/hackerrun/hackerrun/internal/deploy"
	"github.com/hackerrun/hackerrun/internal/dockerctx"
	"github.com/hackerrun/hackerrun/internal/ui"
)

var deployUser string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the compose application in the current directory",
	Long: `Deploy the current directory to the provisioned server.

This command will:
1. Read docker-compose.yml and ask which service should receive traffic
2. Write docker-compose.hackerrun.yml with routing and TLS labels injected
3. Upload a snapshot of the project to the server
4. Bring the stack up on the server through a docker context switch
5. Record the deployment in .hackerrun.yml

Example:
  $ hackerrun deploy
  ✓ exposing service web
  → Bringing up web
  ✓ deployed: https://web.203.0.113.7.sslip.io`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDeploy(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	deployCmd.Flags().StringVar(&deployUser, "user", "root", "SSH user on the server")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(ctx context.Context) error {
	store, err := config.Open()
	if err != nil {
		return err
	}
	docker, err := dockerctx.New(ctx)
	if err != nil {
		return err
	}
	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	prompter := ui.Terminal{}
	rec, err := deploy.Run(ctx, deploy.Options{
		Store:      store,
		Prompter:   prompter,
		Engine:     docker,
		ProjectDir: projectDir,
		Dial: func(ctx context.Context, host string) (deploy.Session, error) {
			return dialHost(ctx, host, deployUser, prompter)
		},
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s deployed: https://%s\n", green("✓"), rec.Domain)
	fmt.Println("The first request can take a minute while the certificate is issued.")
	return nil
}
