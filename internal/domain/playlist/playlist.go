// Package playlist provides the Playlist domain entity.
package playlist

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Playlist is an ordered list of locators read from a text file.
type Playlist struct {
	Name    string   // File name without extension
	Entries []string // One locator per line, in file order
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	return len(p.Entries)
}

// Parse reads one locator per line. Blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader) (*Playlist, error) {
	p := &Playlist{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p.Entries = append(p.Entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read playlist")
	}
	return p, nil
}

// ParseFile reads a playlist file. Relative entries are resolved against the file's directory.
func ParseFile(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open playlist %s", path)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	p.Name = strings.TrimSuffix(base, filepath.Ext(base))

	dir := filepath.Dir(path)
	for i, e := range p.Entries {
		if isLocalPath(e) && !filepath.IsAbs(e) {
			p.Entries[i] = filepath.Join(dir, e)
		}
	}
	return p, nil
}

func isLocalPath(entry string) bool {
	return !strings.Contains(entry, "://") && !strings.HasPrefix(entry, "spotify:")
}
