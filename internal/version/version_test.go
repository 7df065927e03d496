package version

import "testing"

func TestGetVersionString(t *testing.T) {
	oldV, oldC := Version, CommitHash
	t.Cleanup(func() { Version, CommitHash = oldV, oldC })

	Version, CommitHash = "v1.0.0", ""
	if got := GetVersionString(); got != "v1.0.0" {
		t.Fatalf("unexpected %q", got)
	}
	CommitHash = "abc123"
	if got := GetVersionString(); got != "v1.0.0 (commit abc123)" {
		t.Fatalf("unexpected %q", got)
	}
}
