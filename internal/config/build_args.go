package config

import "fmt"

// These variables are replaced at link time via -ldflags.
var (
	// ModuleName of this repository.
	ModuleName = "safe-refill"
	// Commit the binary was built from.
	Commit = "local"
	// BuildDate of the binary.
	BuildDate = "unknown"
)

// GetFormattedBuildArgs returns "ModuleName @ Commit (BuildDate)".
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
