package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetForTest(t *testing.T) {
	t.Helper()
	mu.Lock()
	v = newViper()
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		v = newViper()
		mu.Unlock()
	})
}

func TestDefaultsWhenUnset(t *testing.T) {
	resetForTest(t)

	assert.Equal(t, "fallback", String("CBAS_TEST_UNSET_STRING", "fallback"))
	n, err := Int("CBAS_TEST_UNSET_INT", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	d, err := Duration("CBAS_TEST_UNSET_DURATION", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestEnvironmentValues(t *testing.T) {
	resetForTest(t)
	t.Setenv("CBAS_TEST_INT", "42")
	t.Setenv("CBAS_TEST_BOOL", "true")
	t.Setenv("CBAS_TEST_EMPTY", "")

	n, err := Int("CBAS_TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	b, err := Bool("CBAS_TEST_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)
	assert.Equal(t, "", String("CBAS_TEST_EMPTY", "fallback"))
}

func TestParseErrorsNameTheKey(t *testing.T) {
	resetForTest(t)
	t.Setenv("CBAS_TEST_BAD_INT", "many")

	_, err := Int("CBAS_TEST_BAD_INT", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CBAS_TEST_BAD_INT")
}

func TestLoadFileIsOverriddenByEnvironment(t *testing.T) {
	resetForTest(t)
	path := filepath.Join(t.TempDir(), "cbas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("CBAS_TEST_FILE_ONLY: from-file\nCBAS_TEST_BOTH: from-file\n"), 0o600))
	t.Setenv("CBAS_TEST_BOTH", "from-env")

	require.NoError(t, LoadFile(path))
	assert.Equal(t, "from-file", String("CBAS_TEST_FILE_ONLY", ""))
	assert.Equal(t, "from-env", String("CBAS_TEST_BOTH", ""))
}

func TestLoadFileMissing(t *testing.T) {
	resetForTest(t)
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.NoError(t, LoadFile(""))
}
