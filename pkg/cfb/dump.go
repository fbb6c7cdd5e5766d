package cfb

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// IndexFileName is the name of the stream index written by Dump.
const IndexFileName = "streams.yaml"

// DumpEntry describes one stream written by Dump.
type DumpEntry struct {
	Name    string `yaml:"name"`
	RawName string `yaml:"raw_name"`
	File    string `yaml:"file"`
	Size    int64  `yaml:"size"`
	Header  string `yaml:"header"`
	Cabinet bool   `yaml:"cabinet"`
}

// Dump writes every stream to its own file under dir, plus an index
// describing them. displayName maps raw stream names to readable ones and
// may be nil. File names are the stream's position in directory order so
// that undecodable names never reach the file system.
func Dump(streams []*Stream, dir string, displayName func(string) string) ([]DumpEntry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump directory: %w", err)
	}

	entries := make([]DumpEntry, 0, len(streams))
	for i, s := range streams {
		name := s.Name
		if displayName != nil {
			name = displayName(s.Name)
		}
		fileName := fmt.Sprintf("stream_%03d.bin", i)

		if err := writeStream(s, filepath.Join(dir, fileName)); err != nil {
			return nil, err
		}

		head := make([]byte, min(s.Size, 16))
		if _, err := s.data.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header of stream %q: %w", s.Name, err)
		}
		isCab, err := s.HasMagic(CabinetMagic)
		if err != nil {
			return nil, err
		}

		entries = append(entries, DumpEntry{
			Name:    name,
			RawName: fmt.Sprintf("%q", s.Name),
			File:    fileName,
			Size:    s.Size,
			Header:  hex.EncodeToString(head),
			Cabinet: isCab,
		})
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode stream index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFileName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write stream index: %w", err)
	}
	return entries, nil
}

func writeStream(s *Stream, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, s.Open()); err != nil {
		out.Close()
		return fmt.Errorf("write stream %q: %w", s.Name, err)
	}
	return out.Close()
}
