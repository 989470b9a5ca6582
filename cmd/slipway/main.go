// Command slipway provisions a deployment topology on AWS: a container build
// pipeline feeding a load-balanced container service.
package main

import "os"

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitConfigError = 2
)

func main() {
	os.Exit(run())
}
