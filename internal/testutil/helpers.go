package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// RunConcurrent runs fn on n goroutines at once and waits for all of them.
// Panics are reported as test failures.
func RunConcurrent(t *testing.T, n int, fn func(workerID int)) {
	t.Helper()

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	wg.Add(n)

	for i := range n {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", workerID, r)
				}
			}()

			<-start
			fn(workerID)
		}(i)
	}

	close(start)
	wg.Wait()
}

// WriteSchemaFile writes content to name inside a temp dir and returns the path
func WriteSchemaFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}

	return path
}

// ShopSchemaYAML is the users/orders schema as a YAML document
const ShopSchemaYAML = "users: [id, name]\norders: [id, user_id, total]\n"
