// Package packager bundles generated artifacts into zip archives.
package packager

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/toolchest/favikit/internal/favicon"
)

// ModTime is stamped on every entry so identical inputs give identical
// archives.
var ModTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// Write streams entries into a zip archive on w. Entry names must be unique.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			zw.Close()
			return fmt.Errorf("%w: duplicate entry %q", favicon.ErrPackaging, e.Name)
		}
		seen[e.Name] = true

		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: ModTime,
		})
		if err != nil {
			zw.Close()
			return fmt.Errorf("%w: %s: %v", favicon.ErrPackaging, e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			zw.Close()
			return fmt.Errorf("%w: %s: %v", favicon.ErrPackaging, e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", favicon.ErrPackaging, err)
	}
	return nil
}

// Entries lists what a result contributes to an archive: every favicon in
// order, then manifest.json and favicon.ico when present.
func Entries(r *favicon.Result) []Entry {
	entries := make([]Entry, 0, len(r.Favicons)+2)
	for _, g := range r.Favicons {
		entries = append(entries, Entry{Name: g.Filename, Data: g.Data})
	}
	if r.Manifest != "" {
		entries = append(entries, Entry{Name: favicon.ManifestName, Data: []byte(r.Manifest)})
	}
	if len(r.ICO) > 0 {
		entries = append(entries, Entry{Name: favicon.ICOName, Data: r.ICO})
	}
	return entries
}

// Package builds favicons.zip for a single result.
func Package(r *favicon.Result) ([]byte, error) {
	entries := Entries(r)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: nothing to package", favicon.ErrPackaging)
	}
	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackageBatch builds one archive with a directory per successful result,
// named after the source file stem. Repeated stems get -2, -3 and so on.
func PackageBatch(results []*favicon.Result) ([]byte, error) {
	var entries []Entry
	used := make(map[string]int)
	for _, r := range results {
		if r == nil || !r.Success {
			continue
		}
		dir := UniqueName(Stem(r.Source), used)
		for _, e := range Entries(r) {
			entries = append(entries, Entry{Name: path.Join(dir, e.Name), Data: e.Data})
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no successful results", favicon.ErrPackaging)
	}
	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read lists the entries of an archive in stored order.
func Read(archive []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	entries := make([]Entry, 0, len(zr.File))
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
		entries = append(entries, Entry{Name: f.Name, Data: data})
	}
	return entries, nil
}

// Stem returns the base name of a source without its extension.
func Stem(source string) string {
	base := filepath.Base(strings.ReplaceAll(source, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSpace(stem)
	if stem == "" || stem == "." || stem == "/" {
		return "image"
	}
	return stem
}

// UniqueName returns stem, or stem-2, stem-3 and so on when used already
// holds it. It records the returned name in used.
func UniqueName(stem string, used map[string]int) string {
	used[stem]++
	n := used[stem]
	if n == 1 {
		return stem
	}
	for {
		candidate := fmt.Sprintf("%s-%d", stem, n)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
		n++
	}
}
