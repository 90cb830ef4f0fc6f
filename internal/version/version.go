package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/ruianderson/sts-proxy/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func Get() string {
	return fmt.Sprintf("sts-proxy %s (commit %s, built %s, %s %s/%s)", Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
