package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hackerrun/hackerrun/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured server and this project's last deployment",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatus(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
	store, err := config.Open()
	if err != nil {
		return err
	}
	if store.ServerAddress() == "" {
		fmt.Println("No server configured. Run `hackerrun init` to provision one.")
		return nil
	}
	fmt.Printf("Server: %s\n", store.ServerAddress())

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	rec, err := config.LoadRecord(cwd)
	if err != nil {
		fmt.Println("No deployment recorded for this directory yet.")
		return nil
	}
	fmt.Printf("Last deployment:\n")
	fmt.Printf("  Service:  %s\n", rec.Service)
	fmt.Printf("  Domain:   https://%s\n", rec.Domain)
	fmt.Printf("  Deployed: %s\n", rec.DeployedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
