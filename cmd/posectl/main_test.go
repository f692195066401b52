package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posemind/internal/domain"
	"posemind/internal/storage"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImportImage(t *testing.T) {
	uploads, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	name, err := importImage(ctx, uploads, writeFile(t, "My Photo.png", buf.Bytes()))
	require.NoError(t, err)
	assert.Regexp(t, `^\d+_My_Photo\.png$`, name)
	assert.True(t, uploads.Exists(name))

	_, err = importImage(ctx, uploads, writeFile(t, "notes.txt", []byte("x")))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	chunk := []byte("IHDR")
	chunk = binary.BigEndian.AppendUint32(chunk, 20000)
	chunk = binary.BigEndian.AppendUint32(chunk, 20000)
	chunk = append(chunk, 8, 0, 0, 0, 0)
	huge := binary.BigEndian.AppendUint32([]byte("\x89PNG\r\n\x1a\n"), 13)
	huge = append(huge, chunk...)
	huge = binary.BigEndian.AppendUint32(huge, crc32.ChecksumIEEE(chunk))
	_, err = importImage(ctx, uploads, writeFile(t, "huge.png", huge))
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, err = importImage(ctx, uploads, filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
