// Package version exposes the build identity stamped into the docchat
// binary with -ldflags, for example:
//
//	go build -ldflags "-X github.com/docchat/docchat-go/internal/version.Version=v0.3.0 \
//	  -X github.com/docchat/docchat-go/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/docchat/docchat-go/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Unstamped builds (go run, plain go build) keep the defaults below so the
// version command still prints something sensible.
package version

var (
	// Version is the release tag, "dev" when unstamped.
	Version = "dev"

	// Commit is the short git SHA the binary was built from.
	Commit = "unknown"

	// BuildDate is the UTC build timestamp in RFC 3339 form.
	BuildDate = "unknown"
)
