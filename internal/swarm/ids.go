// ABOUTME: ID generation for identifiers that need a process-wide-unique, opaque token.
// ABOUTME: Used here for attachment batch directory names.
package swarm

import "github.com/google/uuid"

// newBatchID returns a new unique string used to name an attachment staging
// batch directory.
func newBatchID() string {
	return uuid.NewString()
}
