package interpret

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"tunes/internal/backend/localfile"
	"tunes/internal/backend/playlistfile"
	"tunes/internal/backend/smart"
	"tunes/internal/backend/streaming"
	"tunes/internal/library"
)

// SmartPrefix marks a query playlist expression.
const SmartPrefix = "smart:"

// Matcher recognises one kind of input. It reports false to let the next
// matcher try.
type Matcher func(input string) (library.Token, bool, error)

// Interpreter tries matchers in order.
type Interpreter struct {
	matchers []Matcher
}

// New returns an interpreter with the given matchers.
func New(matchers ...Matcher) *Interpreter {
	return &Interpreter{matchers: matchers}
}

// Default recognises streaming links, query playlists, M3U files,
// directories and audio files, in that order.
func Default(files *localfile.Backend) *Interpreter {
	return New(
		Streaming,
		Smart,
		Playlist,
		AudioFile(files),
	)
}

// Interpret returns the token input refers to.
func (i *Interpreter) Interpret(input string) (library.Token, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return library.Token{}, fmt.Errorf("interpret: empty input: %w", library.ErrUnsupported)
	}
	for _, match := range i.matchers {
		token, ok, err := match(input)
		if err != nil {
			return library.Token{}, fmt.Errorf("interpret %q: %w", input, err)
		}
		if ok {
			return token, nil
		}
	}
	return library.Token{}, fmt.Errorf("interpret %q: %w", input, library.ErrUnsupported)
}

// Streaming matches streaming service links and URIs.
func Streaming(input string) (library.Token, bool, error) {
	token, ok := streaming.ParseURL(input)
	return token, ok, nil
}

// Smart matches "smart:<expression>".
func Smart(input string) (library.Token, bool, error) {
	expression, ok := strings.CutPrefix(input, SmartPrefix)
	if !ok {
		return library.Token{}, false, nil
	}
	if strings.TrimSpace(expression) == "" {
		return library.Token{}, false, fmt.Errorf("empty query expression")
	}
	return smart.Token(expression), true, nil
}

// Playlist matches M3U files and directories.
func Playlist(input string) (library.Token, bool, error) {
	path, ok := localPath(input)
	if !ok {
		return library.Token{}, false, nil
	}
	if !playlistfile.IsM3U(path) {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			return library.Token{}, false, nil
		}
	}
	return playlistfile.Token(path)
}

// AudioFile matches existing files with an extension files supports.
func AudioFile(files *localfile.Backend) Matcher {
	return func(input string) (library.Token, bool, error) {
		path, ok := localPath(input)
		if !ok || !files.Supports(path) {
			return library.Token{}, false, nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return library.Token{}, false, err
		}
		if info.IsDir() {
			return library.Token{}, false, nil
		}
		token, err := localfile.Token(path)
		return token, err == nil, err
	}
}

// localPath returns the file system path of input: a plain path or a
// file:// URL.
func localPath(input string) (string, bool) {
	if !strings.Contains(input, "://") {
		return input, true
	}
	u, err := url.Parse(input)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return u.Path, true
}
