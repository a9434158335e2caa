// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/berthd/berth/pkg/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "berth",
	Short: "Berth - a chunked file upload server",
	Long: `Berth is a resumable file upload server. Clients send files in
chunks, merge them into the final artifact, and resume interrupted
transfers. Files are organized into modules on the local filesystem.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
