// Package testutil provides common constants and utilities for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// TestConcurrency is the number of overlapping requests in concurrency tests
	TestConcurrency = 32
)

// Common test strings
const (
	// TestModel is the model name reported by MockGenerator
	TestModel = "gemini-test"

	// TestAPIKey is a placeholder credential
	TestAPIKey = "test-api-key"

	// TestContinuationQuery is a partially written query
	TestContinuationQuery = "SELECT name FROM use"

	// TestInstruction is a natural-language request including the marker
	TestInstruction = "--sql: all users over 18"
)
