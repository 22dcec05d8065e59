// ABOUTME: agents.json persistence: atomic temp-file-then-rename writes, the same discipline used for session snapshots.
package swarm

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// descriptorFile is the on-disk shape of agents.json.
type descriptorFile struct {
	PrimaryManagerID string            `json:"primaryManagerId"`
	Agents           []AgentDescriptor `json:"agents"`
}

// loadDescriptors reads agents.json from dir. A missing file is not an
// error: it returns an empty file with no primary manager set, letting the
// caller's boot sequence create one.
func loadDescriptors(dir string) (descriptorFile, error) {
	path := filepath.Join(dir, "agents.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return descriptorFile{}, nil
		}
		return descriptorFile{}, err
	}
	var f descriptorFile
	if err := json.Unmarshal(data, &f); err != nil {
		return descriptorFile{}, err
	}
	return f, nil
}

// saveDescriptors writes agents.json atomically: marshal, write to a temp
// file in the same directory, fsync, then rename over the target. This is
// the same write-tmp-then-rename idiom the teacher uses for its runstate.
func saveDescriptors(dir string, f descriptorFile) error {
	f.Agents = sortedDescriptors(f.Agents, f.PrimaryManagerID)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "agents.json")
	tmp, err := os.CreateTemp(dir, "agents-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
