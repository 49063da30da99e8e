package static

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedFiles(t *testing.T) {
	t.Parallel()

	for name, fsys := range map[string]fs.FS{
		"grid.html": NewTemplatesFS(false),
		"grid.css":  NewStylesFS(false),
	} {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)

			f, err := fsys.Open(name)
			r.NoError(err)
			defer f.Close()

			data, err := io.ReadAll(f)
			r.NoError(err)
			r.NotEmpty(data)
		})
	}

	_, err := NewStylesFS(false).Open("missing.css")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadFromDisk(t *testing.T) {
	t.Parallel()

	// Tests are run in the package directory, so "static/..." doesn't exist.
	_, err := NewTemplatesFS(true).Open("grid.html")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
