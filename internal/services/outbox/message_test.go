package outbox

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func messageWithZip(t *testing.T, zipData []byte) Message {
	t.Helper()
	sum := sha256.Sum256(zipData)
	return Message{
		ID:        "42",
		ToAddress: "user@example.com",
		ZipBytes:  base64.StdEncoding.EncodeToString(zipData),
		ZipSHA256: hex.EncodeToString(sum[:]),
	}
}

func TestAttachmentsExtractsImagesOnly(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{
		"photo.png":  append(pngHeader, make([]byte, 32)...),
		"readme.txt": []byte("plain text, skipped"),
	})

	attachments, err := messageWithZip(t, zipData).Attachments()
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "photo.png", attachments[0].Name)
	assert.Equal(t, "image/png", attachments[0].ContentType)
	assert.Equal(t, append(pngHeader, make([]byte, 32)...), attachments[0].Data)
}

func TestAttachmentsSniffsUnknownExtensions(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{
		"scan.blob": append(pngHeader, make([]byte, 32)...),
	})

	attachments, err := messageWithZip(t, zipData).Attachments()
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "image/png", attachments[0].ContentType)
}

func TestAttachmentsRejectsDigestMismatch(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{"photo.png": pngHeader})
	m := messageWithZip(t, zipData)
	m.ZipSHA256 = hex.EncodeToString(bytes.Repeat([]byte{0xAB}, 32))

	_, err := m.Attachments()
	require.ErrorContains(t, err, "digest mismatch")
}

func TestAttachmentsToleratesSloppyEncodings(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{"photo.png": pngHeader})
	m := messageWithZip(t, zipData)
	// Whitespace inside base64 and a prefixed uppercase digest still verify.
	m.ZipBytes = m.ZipBytes[:10] + "\n\t " + m.ZipBytes[10:]
	sum := sha256.Sum256(zipData)
	m.ZipSHA256 = "\\x" + hex.EncodeToString(sum[:])
	m.ZipSHA256 = string(bytes.ToUpper([]byte(m.ZipSHA256[:20]))) + m.ZipSHA256[20:]

	attachments, err := m.Attachments()
	require.NoError(t, err)
	require.Len(t, attachments, 1)
}

func TestAttachmentsEmptyPayload(t *testing.T) {
	attachments, err := Message{}.Attachments()
	require.NoError(t, err)
	assert.Nil(t, attachments)
}

func TestNormalizeHex(t *testing.T) {
	assert.Equal(t, "abcdef01", normalizeHex("ABCDEF01"))
	assert.Equal(t, "abcdef01", normalizeHex("0xabcdef01"))
	assert.Equal(t, "abcdef01", normalizeHex(`\xAB CD EF 01`))
	assert.Equal(t, "abcdef01", normalizeHex(" abcdef01\n"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeFilename("a\nb"))
	assert.Equal(t, "a_b", sanitizeFilename("a\rb"))
	assert.Equal(t, "file", sanitizeFilename("   "))
}
