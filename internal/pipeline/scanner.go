package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/toolchest/favikit/internal/decoder"
)

// Source is one image handed to the pipeline, either a file on disk or an
// in-memory upload.
type Source struct {
	// Name is what results and archives call the source.
	Name string
	// Path is the file on disk. Empty for in-memory sources.
	Path string
	// MIME is the declared content type. Empty means sniff.
	MIME string
	// Size is the payload size in bytes.
	Size int64
	// Data holds the payload of in-memory sources.
	Data []byte
}

// FromBytes wraps an upload.
func FromBytes(name string, data []byte, mime string) Source {
	return Source{Name: name, MIME: mime, Size: int64(len(data)), Data: data}
}

// FromFile stats a file without reading it.
func FromFile(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, err
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", path)
	}
	return Source{
		Name: filepath.Base(path),
		Path: path,
		MIME: decoder.MIMEFromFilename(path),
		Size: info.Size(),
	}, nil
}

// Load returns the payload, reading it from disk when needed.
func (s Source) Load() ([]byte, error) {
	if s.Data != nil || s.Path == "" {
		return s.Data, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Name, err)
	}
	return data, nil
}

// ScanImages resolves files and directories into sources. Files are taken
// as given, whatever their extension; directories are walked for
// recognized image extensions, skipping hidden ones. Order follows the
// arguments, and within a directory the lexical walk order.
func ScanImages(inputs ...string) ([]Source, error) {
	var sources []Source
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			src, err := FromFile(in)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			continue
		}

		found, err := scanDir(in)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}
	return sources, nil
}

func scanDir(dir string) ([]Source, error) {
	var sources []Source
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Skip hidden directories.
			if strings.HasPrefix(info.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		mime := decoder.MIMEFromFilename(path)
		if !decoder.Supported(mime) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sources = append(sources, Source{
			Name: filepath.ToSlash(rel),
			Path: path,
			MIME: mime,
			Size: info.Size(),
		})
		return nil
	})
	return sources, err
}
