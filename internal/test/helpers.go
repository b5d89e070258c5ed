package test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func ProjectRoot() string {
	_, b, _, _ := runtime.Caller(0)
	// Root folder of this project is 2 levels up from this file
	return filepath.Join(filepath.Dir(b), "../..")
}

// ReadFixture returns the contents of a file relative to the project root.
func ReadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ProjectRoot(), path))
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return data
}
