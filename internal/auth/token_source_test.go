// ABOUTME: Tests for token sources and source chaining

package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenSource(t *testing.T) {
	token, err := StaticTokenSource("abc").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = StaticTokenSource("").Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestEnvTokenSource(t *testing.T) {
	t.Setenv("YCYW_TEST_TOKEN", "  from-env\n")
	token, err := EnvTokenSource("YCYW_TEST_TOKEN").Token()
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)

	t.Setenv("YCYW_TEST_TOKEN", "")
	_, err = EnvTokenSource("YCYW_TEST_TOKEN").Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	token, err := FileTokenSource(path).Token()
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)

	_, err = FileTokenSource(filepath.Join(t.TempDir(), "missing")).Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestChain_FirstAvailableWins(t *testing.T) {
	chain := Chain{
		StaticTokenSource(""),
		StaticTokenSource("second"),
		StaticTokenSource("third"),
	}
	token, err := chain.Token()
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestChain_AllEmpty(t *testing.T) {
	_, err := Chain{StaticTokenSource("")}.Token()
	assert.ErrorIs(t, err, ErrNoToken)
}
