// config.go - boot-time configuration read once from the environment.
//
// Grounded on file_io.go's NewFileIODevice/sanitizePath, which reads a
// base directory once at construction and never re-consults the
// environment mid-run; the same discipline applies here to spec.md §6's
// VIUAPATH/VIUAAFTERPATH/VIUAPRELINK/VIUAPREIMPORT variables.

package viua

import (
	"os"
	"strings"
)

// Config is populated once at kernel boot and then treated as read-only.
type Config struct {
	ModulePath   []string // VIUAPATH, colon-separated
	AfterPath    []string // VIUAAFTERPATH, colon-separated
	PrelinkMods  []string // VIUAPRELINK, colon-separated module names linked at boot
	PreimportLibs []string // VIUAPREIMPORT, colon-separated foreign libraries loaded at boot
	Verbose      bool
	Debug        bool
	Scream       bool
}

// LoadConfig reads the environment once, the way file_io.go's constructor
// reads its base directory once.
func LoadConfig() Config {
	return Config{
		ModulePath:    splitPath(os.Getenv("VIUAPATH")),
		AfterPath:     splitPath(os.Getenv("VIUAAFTERPATH")),
		PrelinkMods:   splitPath(os.Getenv("VIUAPRELINK")),
		PreimportLibs: splitPath(os.Getenv("VIUAPREIMPORT")),
	}
}

func splitPath(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
