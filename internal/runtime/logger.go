// ABOUTME: Package-level zap logger, defaulting to a no-op until the daemon wires a real one at boot.
// ABOUTME: Mirrors the registry/logger field defaults teradata-labs-loom's spawn_agent.go falls back to.
package runtime

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger installs l as the package-wide logger. Call once at daemon boot.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
