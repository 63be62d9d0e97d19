package main

import (
	"os"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "hackerrun",
	Short: "Deploy compose applications to your own VPS with TLS included",
	Long: `hackerrun turns a plain Ubuntu VPS into a place you can deploy to.

Provision the host once with "hackerrun init": it installs Docker, starts a
Traefik reverse proxy with automatic Let's Encrypt certificates, and
registers a docker context for the server.

Then run "hackerrun deploy" in any directory with a docker-compose.yml. The
selected service becomes reachable at https://<service>.<server-ip>.sslip.io
with no DNS setup.`,
	Version:       buildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
