// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// maxConfigFileSize bounds config.cue before it is handed to the CUE compiler.
const maxConfigFileSize = 1 << 20

// ErrConfigFileTooLarge is returned when config.cue exceeds maxConfigFileSize.
var ErrConfigFileTooLarge = errors.New("config file too large")

func checkFileSize(data []byte, maxSize int, filename string) error {
	if len(data) > maxSize {
		return fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrConfigFileTooLarge, filename, len(data), maxSize)
	}
	return nil
}

// formatCUEError flattens a CUE error list into one line per problem,
// each prefixed with the file and the CUE path of the offending field.
func formatCUEError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Error()
		if p := e.Path(); len(p) > 0 {
			path := strings.Join(p, ".")
			if !strings.Contains(msg, path) {
				msg = path + ": " + msg
			}
		}
		lines = append(lines, msg)
	}

	return fmt.Errorf("%s: %s", filePath, strings.Join(lines, "\n  "))
}
