// Package version guarda a versão do binário, preenchida via -ldflags.
package version

import "fmt"

// go build -ldflags "-X petition-gateway/internal/version.Version=v1.2.3 -X petition-gateway/internal/version.CommitHash=abc123"
var (
	Version    = "devel"
	CommitHash = ""
)

func GetVersionString() string {
	if CommitHash == "" {
		return Version
	}
	return fmt.Sprintf("%s (commit %s)", Version, CommitHash)
}
