package labels_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emblem_backend/internal/feature/emblem/adapters/labels"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	t.Run("empty path returns built-in table", func(t *testing.T) {
		table, err := labels.LoadTable("")
		require.NoError(t, err)
		assert.Equal(t, "北京大学", table["pku"])
	})

	t.Run("yaml overrides and extends", func(t *testing.T) {
		path := writeFile(t, "labels.yaml", "PKU: 北京大学（燕园）\nmit: 麻省理工学院\n")
		table, err := labels.LoadTable(path)
		require.NoError(t, err)
		assert.Equal(t, "北京大学（燕园）", table["pku"])
		assert.Equal(t, "麻省理工学院", table["mit"])
		assert.Equal(t, "清华大学", table["thu"])
	})

	t.Run("json is accepted", func(t *testing.T) {
		path := writeFile(t, "labels.json", `{"ox": "牛津大学"}`)
		table, err := labels.LoadTable(path)
		require.NoError(t, err)
		assert.Equal(t, "牛津大学", table["ox"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := labels.LoadTable(filepath.Join(t.TempDir(), "none.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "- a\n- b\n")
		_, err := labels.LoadTable(path)
		assert.Error(t, err)
	})
}

func TestDefaultTable_IsCopy(t *testing.T) {
	t.Parallel()

	a := labels.DefaultTable()
	a["pku"] = "changed"
	assert.Equal(t, "北京大学", labels.DefaultTable()["pku"])
}

func TestLoadClassNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "data.yaml with list",
			file:    "data.yaml",
			content: "path: ../datasets\nnc: 3\nnames: [pku, thu, zju]\n",
			want:    []string{"pku", "thu", "zju"},
		},
		{
			name:    "data.yaml with id map",
			file:    "data.yml",
			content: "names:\n  1: thu\n  0: pku\n  3: fdu\n",
			want:    []string{"pku", "thu", "", "fdu"},
		},
		{
			name:    "text file",
			file:    "classes.txt",
			content: "# classes\npku\n\nthu\n",
			want:    []string{"pku", "thu"},
		},
		{
			name:    "yaml without names",
			file:    "data.yaml",
			content: "nc: 2\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := labels.LoadClassNames(writeFile(t, tt.file, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
