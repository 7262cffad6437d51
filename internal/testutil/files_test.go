package testutil

import (
	"os"
	"testing"
)

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, "fixture.yaml", "name: x\n")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back %s: %v", path, err)
	}
	if string(data) != "name: x\n" {
		t.Errorf("unexpected content %q", data)
	}
}
