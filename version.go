// Package repoagent holds the version of the repository agent.
package repoagent

// Version is the current version of repoagent.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
