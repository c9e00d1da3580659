package diskimage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadImageDsk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.dsk")
	require.NoError(t, os.WriteFile(path, testDskImage(), 0o644))

	im, err := LoadImage(path)
	require.NoError(t, err)
	assert.Nil(t, im.Woz)
	assert.Equal(t, "game", im.Disk.Title)
	assert.Equal(t, path, im.Path)
}

func TestLoadImageWoz(t *testing.T) {
	data, err := WriteWoz2(testWozDisk(), WozInfo{}, map[string]string{"title": "woz game"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "game.woz")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	im, err := LoadImage(path)
	require.NoError(t, err)
	require.NotNil(t, im.Woz)
	assert.Equal(t, "woz game", im.Disk.Title)
}

func TestLoadImageMissingFile(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "nope.dsk"))
	require.Error(t, err)
}

func TestLoadImageMalformedWoz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.woz")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a woz file"), 0o644))
	_, err := LoadImage(path)
	require.Error(t, err)
}

func TestImageSaveDskRoundTrip(t *testing.T) {
	image := testDskImage()
	path := filepath.Join(t.TempDir(), "save.dsk")
	require.NoError(t, os.WriteFile(path, image, 0o644))

	im, err := LoadImage(path)
	require.NoError(t, err)
	im.Disk.Dirty = true
	require.NoError(t, im.Save())
	assert.False(t, im.Disk.Dirty)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	if diff := deep.Equal(image, written); diff != nil {
		t.Fatalf("saved image differs: %v", diff[:min(len(diff), 5)])
	}
}

func TestImageSaveWoz(t *testing.T) {
	data, err := WriteWoz2(testWozDisk(), WozInfo{}, nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "save.woz")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	im, err := LoadImage(path)
	require.NoError(t, err)
	require.NoError(t, im.Save())

	// The rewritten file still parses and carries the same bit streams.
	again, err := LoadImage(path)
	require.NoError(t, err)
	if diff := deep.Equal(im.Disk.Streams.Streams, again.Disk.Streams.Streams); diff != nil {
		t.Fatalf("woz rewrite mismatch: %v", diff)
	}
}

func TestImageWithoutPathSavesNowhere(t *testing.T) {
	im := &Image{Disk: &Disk{Dirty: true}}
	require.NoError(t, im.Save())
	assert.False(t, im.Disk.Dirty)
}
