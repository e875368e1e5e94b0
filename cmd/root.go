package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/chat-sync/internal/app"
	"github.com/nguyentranbao-ct/chat-sync/internal/server"
)

var rootCmd = &cobra.Command{
	Use:           "chat-sync",
	Short:         "Keeps a chat's message list in sync with the remote feed and serves it offline",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(
			server.StartServer,
		).Run()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
