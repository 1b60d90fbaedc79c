// Package testutil provides testing utilities for mongobridge
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Environment variables that enable tests against live servers
const (
	MongoURIEnv = "MONGOBRIDGE_TEST_MONGO_URI"
	MySQLDSNEnv = "MONGOBRIDGE_TEST_MYSQL_DSN"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout that is
// cancelled when the test ends.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// RequireMongoURI returns the live document store URI or skips the test
func RequireMongoURI(t *testing.T) string {
	t.Helper()
	IntegrationTest(t)
	uri := os.Getenv(MongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set", MongoURIEnv)
	}
	return uri
}

// RequireMySQLDSN returns the live relational DSN or skips the test
func RequireMySQLDSN(t *testing.T) string {
	t.Helper()
	IntegrationTest(t)
	dsn := os.Getenv(MySQLDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", MySQLDSNEnv)
	}
	return dsn
}

// UniqueName returns a name safe for databases, collections and tables
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// WriteFile writes content under a per-test temp dir and returns the path
func WriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// PastaJSON returns a JSON array of n dish objects
func PastaJSON(n int) []byte {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"title":"dish %d","minutes":%d,"vegetarian":%t}`, i, 10+i, i%2 == 0)
	}
	return []byte("[" + strings.Join(items, ",") + "]")
}

// PastaCSV returns a CSV document with a header and n rows
func PastaCSV(n int, delimiter string) []byte {
	var b strings.Builder
	b.WriteString(strings.Join([]string{"title", "minutes", "sauce"}, delimiter) + "\n")
	for i := 0; i < n; i++ {
		b.WriteString(strings.Join([]string{fmt.Sprintf("dish %d", i), fmt.Sprint(10 + i), "pomodoro"}, delimiter) + "\n")
	}
	return []byte(b.String())
}
