// ABOUTME: Binary attachment staging: writes base64-decoded files under dataDir/attachments and returns their paths.
// ABOUTME: safeFileName sanitizes untrusted filenames the same allowlist-validation way cwdpolicy treats cwd candidates.
package swarm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/draphael89/swarmd/internal/session"
)

// unsafeFileNameChars matches everything outside a conservative filename
// allowlist; anything matched is replaced with "_".
var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// safeFileName strips path separators and any character outside a
// conservative allowlist, so a malicious fileName can't escape the staging
// directory or collide with a dotfile. An empty result falls back to
// "attachment".
func safeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeFileNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "attachment"
	}
	return name
}

// RawAttachment is an inbound attachment before it's classified and staged:
// Base64 binary data for images/binaries, or plain Inline text.
type RawAttachment struct {
	FileName string
	MimeType string
	Base64   string
	Inline   string
}

// agentSegment turns an agent ID into a path component safe for use as a
// staging subdirectory, mirroring safeFileName's allowlist.
func agentSegment(agentID string) string {
	seg := unsafeFileNameChars.ReplaceAllString(agentID, "_")
	if seg == "" {
		return "agent"
	}
	return seg
}

// stageAttachments writes raw's binary attachments under
// dataDir/attachments/{agentSegment}/{batchId}/{NN}-{safeFileName} and
// inlines the rest, returning one session.Attachment per input in order.
// Text attachments (Inline set, Base64 empty) are never written to disk.
func stageAttachments(dataDir, agentID, batchID string, raw []RawAttachment) ([]session.Attachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	out := make([]session.Attachment, 0, len(raw))
	var batchDir string

	for i, r := range raw {
		if r.Base64 == "" {
			out = append(out, session.Attachment{
				FileName: safeFileName(r.FileName),
				MimeType: r.MimeType,
				Inline:   r.Inline,
			})
			continue
		}

		if batchDir == "" {
			batchDir = filepath.Join(dataDir, "attachments", agentSegment(agentID), batchID)
			if err := os.MkdirAll(batchDir, 0o755); err != nil {
				return nil, fmt.Errorf("swarm: create attachment batch dir: %w", err)
			}
		}

		data, err := base64.StdEncoding.DecodeString(r.Base64)
		if err != nil {
			return nil, fmt.Errorf("swarm: decode attachment %q: %w", r.FileName, err)
		}

		name := fmt.Sprintf("%02d-%s", i, safeFileName(r.FileName))
		path := filepath.Join(batchDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("swarm: write attachment %q: %w", r.FileName, err)
		}

		out = append(out, session.Attachment{
			FileName: safeFileName(r.FileName),
			MimeType: r.MimeType,
			Path:     path,
		})
	}
	return out, nil
}
