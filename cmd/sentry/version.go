// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/getsentry/cli/internal/config"
	"github.com/getsentry/cli/internal/selfupdate"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version, release channel and install method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			execPath, err := selfupdate.ResolveExecPath()
			if err != nil {
				return err
			}

			var rec *selfupdate.InstallRecord
			if recordPath, err := config.InstallRecordPath(config.LoadOptions{}); err == nil {
				if rec, err = selfupdate.ReadRecord(recordPath); err != nil {
					log.Debug("ignoring unreadable install record", "path", recordPath, "err", err)
				}
			}

			printVersion(cmd.OutOrStdout(), getVersionString(), execPath, rec)
			return nil
		},
	}
}

func printVersion(w io.Writer, version, execPath string, rec *selfupdate.InstallRecord) {
	channel := selfupdate.ChannelStable
	if rec != nil && rec.Channel != "" {
		channel = rec.Channel
	}
	method := selfupdate.DetectInstallMethod(execPath, rec)

	fmt.Fprintf(w, "%s %s\n", TitleStyle.Render("sentry"), version)
	fmt.Fprintf(w, "  channel: %s\n", channel)
	fmt.Fprintf(w, "  install: %s (%s)\n", execPath, method)
	if method.Managed() {
		fmt.Fprintf(w, "  upgrade: %s\n", CmdStyle.Render(method.UpgradeCommand()))
	}
}
