// ABOUTME: Tests for safeFileName sanitization and the binary-attachment staging layout.
package swarm

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFileNameStripsPathAndUnsafeChars(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"my file.txt":       "my_file.txt",
		"..hidden":          "hidden",
		"":                  "attachment",
		"report.PDF":        "report.PDF",
	}
	for in, want := range cases {
		if got := safeFileName(in); got != want {
			t.Errorf("safeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStageAttachmentsWritesBinaryDataUnderBatchDir(t *testing.T) {
	dataDir := t.TempDir()
	data := []byte("hello world")
	raw := []RawAttachment{
		{FileName: "notes.txt", MimeType: "text/plain", Base64: base64.StdEncoding.EncodeToString(data)},
	}

	staged, err := stageAttachments(dataDir, "worker-1", "batch-1", raw)
	if err != nil {
		t.Fatalf("stageAttachments: %v", err)
	}
	if len(staged) != 1 {
		t.Fatalf("got %d staged attachments, want 1", len(staged))
	}

	wantPath := filepath.Join(dataDir, "attachments", "worker-1", "batch-1", "00-notes.txt")
	if staged[0].Path != wantPath {
		t.Errorf("Path = %q, want %q", staged[0].Path, wantPath)
	}
	got, err := os.ReadFile(staged[0].Path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("staged file contents = %q", got)
	}
}

func TestStageAttachmentsInlinesTextWithoutWritingToDisk(t *testing.T) {
	dataDir := t.TempDir()
	raw := []RawAttachment{{FileName: "inline.txt", MimeType: "text/plain", Inline: "already text"}}

	staged, err := stageAttachments(dataDir, "worker-1", "batch-1", raw)
	if err != nil {
		t.Fatalf("stageAttachments: %v", err)
	}
	if len(staged) != 1 || staged[0].Inline != "already text" || staged[0].Path != "" {
		t.Fatalf("got %+v", staged)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "attachments")); !os.IsNotExist(err) {
		t.Error("expected no attachments directory to be created for a purely inline attachment")
	}
}

func TestStageAttachmentsSanitizesFileNameInPath(t *testing.T) {
	dataDir := t.TempDir()
	data := []byte("x")
	raw := []RawAttachment{
		{FileName: "../../etc/passwd", MimeType: "text/plain", Base64: base64.StdEncoding.EncodeToString(data)},
	}

	staged, err := stageAttachments(dataDir, "worker-1", "batch-1", raw)
	if err != nil {
		t.Fatalf("stageAttachments: %v", err)
	}
	wantPath := filepath.Join(dataDir, "attachments", "worker-1", "batch-1", "00-passwd")
	if staged[0].Path != wantPath {
		t.Errorf("Path = %q, want %q", staged[0].Path, wantPath)
	}
}
