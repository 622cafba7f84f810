package cmd

import "fmt"

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// runVersion displays version information.
func runVersion() {
	fmt.Printf("bookchat %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
