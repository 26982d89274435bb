// Package playlist reads M3U playlist files found in the music directory.
package playlist

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Supported playlist file formats.
var supportedExtensions = map[string]bool{
	".m3u":  true,
	".m3u8": true,
}

// IsPlaylist reports whether path has a playlist extension.
func IsPlaylist(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Name returns the playlist name derived from the file name.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Read returns the absolute, cleaned paths listed in an M3U file. Relative
// entries are resolved against the playlist's directory; comments, directives
// and remote URLs are skipped.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist %s: %w", path, err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var entries []string
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			// M3U8 files may start with a UTF-8 BOM.
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "file://") {
			u, err := url.Parse(line)
			if err != nil {
				continue
			}
			line = u.Path
		} else if strings.Contains(line, "://") {
			continue
		}

		line = filepath.FromSlash(line)
		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}
		entries = append(entries, filepath.Clean(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}

	return entries, nil
}
