package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "lwdelta",
	Short:        "Delta protocol repository",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repository until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newServer(configPath)
		if err != nil {
			return err
		}
		return s.run(cmd.Context())
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Serve the repository with an interactive console",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newServer(configPath)
		if err != nil {
			return err
		}
		return console(cmd.Context(), s)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lwdelta.yaml", "configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
