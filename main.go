// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/getsentry/cli/cmd/sentry"

func main() {
	cmd.Execute()
}
