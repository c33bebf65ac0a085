// Package appid holds the application identity used for config paths, env
// prefixes and version output.
package appid

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
)

const (
	Vendor     = "lumenhour"
	BinaryName = "lumenhour"
	ConfigName = "lumenhour"
	EnvPrefix  = "LUMENHOUR_"

	// EnvBinaryName renames the binary in help and version output.
	EnvBinaryName = EnvPrefix + "BINARY_NAME"
)

// Get returns the application identity. ctx is accepted for parity with
// identity loaders that read from disk.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	_ = ctx
	identity := &appidentity.Identity{
		Vendor:     Vendor,
		BinaryName: BinaryName,
		ConfigName: ConfigName,
		EnvPrefix:  EnvPrefix,
	}
	if name := strings.TrimSpace(os.Getenv(EnvBinaryName)); name != "" {
		identity.BinaryName = name
	}
	return identity, nil
}
