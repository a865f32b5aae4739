package outbox

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Message is the outbox document as it travels through the broker.
type Message struct {
	ID        string `json:"id"`
	ToAddress string `json:"to_address"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	ZipBytes  string `json:"zip_bytes"`  // base64
	ZipSHA256 string `json:"zip_sha256"` // hex
}

// Attachment is one extracted file ready to be mailed.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Attachments decodes the zipped payload, verifies it against the sha256
// digest and extracts the image entries. Non-image entries are skipped.
func (m Message) Attachments() ([]Attachment, error) {
	if m.ZipBytes == "" {
		return nil, nil
	}

	zipData, err := base64.StdEncoding.DecodeString(stripSpaces(m.ZipBytes))
	if err != nil {
		return nil, fmt.Errorf("decode zip_bytes: %w", err)
	}

	sum := sha256.Sum256(zipData)
	if hex.EncodeToString(sum[:]) != normalizeHex(m.ZipSHA256) {
		return nil, errors.New("zip digest mismatch")
	}

	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("read zip: %w", err)
	}

	var attachments []Attachment
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}

		ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name)))
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		if !strings.HasPrefix(ct, "image/") {
			continue
		}
		attachments = append(attachments, Attachment{
			Name:        sanitizeFilename(filepath.Base(f.Name)),
			ContentType: ct,
			Data:        data,
		})
	}
	return attachments, nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		default:
			return r
		}
	}, s)
}

// normalizeHex accepts the forms Postgres clients tend to produce:
// optional 0x/\x prefix, mixed case, stray whitespace.
func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if strings.HasPrefix(s, `\x`) || strings.HasPrefix(s, `\X`) {
		s = s[2:]
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\n", "_")
	name = strings.ReplaceAll(name, "\r", "_")
	if name == "" {
		return "file"
	}
	return name
}
