// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/spf13/cobra"

// newCLICommand creates the `sentry cli` group holding the commands that
// manage the sentry binary itself.
func newCLICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Manage this sentry installation",
	}

	cmd.AddCommand(newUpgradeCommand())
	cmd.AddCommand(newSetupCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
