package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/inventory"
)

func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", "", "--driver", "sqlite", "--sqlite-path", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pantry.db")

	out, err := execute(t, db, "add", "apple")
	require.NoError(t, err)
	assert.Equal(t, "Apple: 1\n", out)

	_, err = execute(t, db, "add", "apple")
	require.NoError(t, err)
	out, err = execute(t, db, "set", "bread", "5")
	require.NoError(t, err)
	assert.Equal(t, "Bread: 5\n", out)

	out, err = execute(t, db, "list", "--query", "APP")
	require.NoError(t, err)
	assert.Contains(t, out, "Apple")
	assert.NotContains(t, out, "Bread")

	out, err = execute(t, db, "export")
	require.NoError(t, err)
	assert.Equal(t, "Item,Quantity\nApple,2\nBread,5\n", out)

	out, err = execute(t, db, "remove", "bread")
	require.NoError(t, err)
	assert.Equal(t, "Bread: 4\n", out)

	_, err = execute(t, db, "set", "bread", "0")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), inventory.CSVFileName)
	_, err = execute(t, db, "export", "--out", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "Item,Quantity\nApple,2", string(data))
}

func TestSetRejectsBadQuantity(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pantry.db")
	_, err := execute(t, db, "set", "bread", "lots")
	assert.ErrorIs(t, err, inventory.ErrValidation)
	_, err = execute(t, db, "add")
	assert.Error(t, err)
}
