package testsupport

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Tags are the text frames written by WriteTagged.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   string
	Track  string
}

// WriteTagged writes an ID3v2.3 tagged file followed by a few bytes of
// filler audio.
func WriteTagged(t testing.TB, path string, tags Tags) {
	t.Helper()

	var frames bytes.Buffer
	for _, f := range []struct{ id, value string }{
		{"TIT2", tags.Title},
		{"TPE1", tags.Artist},
		{"TALB", tags.Album},
		{"TCON", tags.Genre},
		{"TYER", tags.Year},
		{"TRCK", tags.Track},
	} {
		if f.value == "" {
			continue
		}
		body := append([]byte{0x00}, f.value...)
		frames.WriteString(f.id)
		_ = binary.Write(&frames, binary.BigEndian, uint32(len(body)))
		frames.Write([]byte{0x00, 0x00})
		frames.Write(body)
	}

	size := frames.Len()
	header := []byte{'I', 'D', '3', 0x03, 0x00, 0x00,
		byte(size>>21) & 0x7f,
		byte(size>>14) & 0x7f,
		byte(size>>7) & 0x7f,
		byte(size) & 0x7f,
	}

	var out bytes.Buffer
	out.Write(header)
	out.Write(frames.Bytes())
	out.Write(bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
