package store

import (
	"path/filepath"

	"github.com/nvandessel/flightbreak/internal/constants"
)

// StateDir returns override when set, otherwise <projectRoot>/.flightbreak.
func StateDir(projectRoot, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(projectRoot, constants.DirName)
}
