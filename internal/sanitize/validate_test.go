package sanitize

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "empty", path: "", wantErr: ErrEmptyPath},
		{name: "parent traversal", path: "../outside", wantErr: ErrPathTraversal},
		{name: "embedded traversal", path: "a/../../b", wantErr: ErrPathTraversal},
		{name: "backslash", path: `a\b`, wantErr: ErrPathTraversal},
		{name: "inside root", path: filepath.Join(root, "file.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, root)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestValidatePathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	_, err := ValidatePath(filepath.Join(other, "file.txt"), root)
	assert.ErrorIs(t, err, ErrPathTraversal)
}
