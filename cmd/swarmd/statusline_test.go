// ABOUTME: Tests that the boot banner renders every summary field into its output.
package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintBootBannerIncludesAllFields(t *testing.T) {
	var buf bytes.Buffer
	printBootBanner(&buf, bootSummary{
		Version:          "dev",
		Bind:             "127.0.0.1:8770",
		DataDir:          "/tmp/swarmd",
		PrimaryManagerID: "primary",
		AgentCount:       3,
		SecretCount:      2,
	})

	out := buf.String()
	for _, want := range []string{"swarmd dev", "127.0.0.1:8770", "/tmp/swarmd", "primary", "3", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner output missing %q:\n%s", want, out)
		}
	}
}
