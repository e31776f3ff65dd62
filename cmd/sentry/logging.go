// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"

	"github.com/charmbracelet/log"
)

// configureLogging installs the default charmbracelet logger used by the
// selfupdate package. Debug output is only shown in verbose mode.
func configureLogging(w io.Writer, verboseMode bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix: "selfupdate",
	})
	if verboseMode {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportTimestamp(true)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	log.SetDefault(logger)
	return logger
}
