// ABOUTME: Package-level zap logger, defaulting to a no-op until the daemon wires a real one at boot.
package httpapi

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger installs l as the package-wide logger. Call once at daemon boot.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
