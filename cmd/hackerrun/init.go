package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hackerrun/hackerrun/internal/config"
	"github.com/hackerrun/hackerrun/internal/dockerctx"
	"github.com/hackerrun/hackerrun/internal/provision"
	"github.com/hackerrun/hackerrun/internal/remote"
	"github.com/hackerrun/hackerrun/internal/ui"
)

var initUser string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision a VPS: install Docker and start the reverse proxy",
	Long: `Prepare a fresh Ubuntu server for deployments.

This command will:
1. Test the SSH connection to the server
2. Install Docker if it is not already present
3. Configure and start the Traefik reverse proxy with TLS support
4. Register a local docker context pointing at the server

Example:
  $ hackerrun init
  Server IP address: 203.0.113.7
  → Connecting to 203.0.113.7
    ✓ connected`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInit(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	initCmd.Flags().StringVar(&initUser, "user", "root", "SSH user on the server")
	rootCmd.AddCommand(initCmd)
}

func runInit(ctx context.Context) error {
	store, err := config.Open()
	if err != nil {
		return err
	}
	docker, err := dockerctx.New(ctx)
	if err != nil {
		return err
	}

	prompter := ui.Terminal{}
	opts := provision.Options{
		Store:    store,
		Prompter: prompter,
		Contexts: docker,
		User:     initUser,
		Dial: func(ctx context.Context, host string) (provision.Session, error) {
			return dialHost(ctx, host, initUser, prompter)
		},
	}
	return provision.Run(ctx, opts)
}

func dialHost(ctx context.Context, host, user string, prompter ui.Prompter) (*remote.Session, error) {
	return remote.Connect(ctx, remote.Config{
		Host: host,
		User: user,
		PassphrasePrompt: func(keyPath string) (string, error) {
			return prompter.Password(fmt.Sprintf("Passphrase for %s", keyPath))
		},
	})
}
