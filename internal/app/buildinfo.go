package app

import "fmt"

// Build information, set with -ldflags "-X" at release time.
var (
    BuildVersion = "0.0.0-dev"
    BuildCommit  = "unknown"
    BuildDate    = "unknown"
)

// VersionString describes the running binary for --version and the API.
func VersionString() string {
    return fmt.Sprintf("chatsave %s (commit %s, built %s)", BuildVersion, BuildCommit, BuildDate)
}
