package msi

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/windowsadmins/msiextract/pkg/logging"
)

// FileEntry is one row of the File table with its install directory
// resolved.
type FileEntry struct {
	// FileKey is the File table primary key, also the entry name inside
	// cabinets.
	FileKey           string `yaml:"file"`
	ShortName         string `yaml:"short_name,omitempty"`
	LongName          string `yaml:"name"`
	Component         string `yaml:"component,omitempty"`
	DirectoryID       string `yaml:"directory_id"`
	ResolvedDirectory string `yaml:"directory"`
	Size              int64  `yaml:"size"`
	Version           string `yaml:"version,omitempty"`
	Sequence          int    `yaml:"sequence"`
	Attributes        int    `yaml:"attributes"`
}

// Path is the slash separated install path relative to the root directory.
func (f FileEntry) Path() string {
	return path.Join(f.ResolvedDirectory, f.LongName)
}

// BuildCatalog reads the File table and resolves every file's directory.
// Entries are sorted by long name, byte-wise and stable. A package without
// a File table has an empty catalog.
func BuildCatalog(p *Package) ([]FileEntry, error) {
	files, err := SnapshotTable(p, "File")
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if files.IsEmpty() {
		return nil, nil
	}

	resolver, err := newDirectoryResolver(p)
	if err != nil {
		return nil, err
	}

	// Files normally get their directory from their component. Merge
	// modules built by some tools carry it on the File row instead.
	var componentDirs map[string]string
	useFileDir := files.ColumnIndex("Directory_") >= 0
	if !useFileDir {
		if componentDirs, err = readComponentDirectories(p); err != nil {
			return nil, err
		}
	}

	entries := make([]FileEntry, 0, len(files.Rows))
	for _, row := range files.Rows {
		short, long := splitName(files.Text(row, "FileName"))
		e := FileEntry{
			FileKey:    files.Text(row, "File"),
			ShortName:  short,
			LongName:   long,
			Component:  files.Text(row, "Component_"),
			Size:       int64(files.Int(row, "FileSize")),
			Version:    files.Text(row, "Version"),
			Sequence:   files.Int(row, "Sequence"),
			Attributes: files.Int(row, "Attributes"),
		}
		if useFileDir {
			e.DirectoryID = files.Text(row, "Directory_")
		} else {
			dir, ok := componentDirs[e.Component]
			if !ok {
				return nil, fmt.Errorf("%w: file %s references unknown component %q", ErrCorruptPackage, e.FileKey, e.Component)
			}
			e.DirectoryID = dir
		}
		if e.ResolvedDirectory, err = resolver.resolve(e.DirectoryID); err != nil {
			return nil, fmt.Errorf("file %s: %w", e.FileKey, err)
		}
		entries = append(entries, e)
	}

	entries, dropped := DedupeByKey(entries)
	for _, d := range dropped {
		logging.Warn("Duplicate file key in File table, keeping first entry", "file", d.FileKey, "dropped", d.LongName)
	}

	SortByLongName(entries)
	return entries, nil
}

// DedupeByKey keeps the first entry of every file key and returns the
// entries that were dropped. Keys that differ only by case are distinct.
func DedupeByKey(entries []FileEntry) (kept, dropped []FileEntry) {
	seen := make(map[string]struct{}, len(entries))
	kept = make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.FileKey]; ok {
			dropped = append(dropped, e)
			continue
		}
		seen[e.FileKey] = struct{}{}
		kept = append(kept, e)
	}
	return kept, dropped
}

// SortByLongName orders entries by long name using a byte-wise comparison.
func SortByLongName(entries []FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LongName < entries[j].LongName
	})
}

// FindByLongName resolves names against a catalog sorted with
// SortByLongName. Names that match no entry are returned in missing.
func FindByLongName(catalog []FileEntry, names []string) (found []FileEntry, missing []string) {
	for _, name := range names {
		i := sort.Search(len(catalog), func(i int) bool { return catalog[i].LongName >= name })
		if i < len(catalog) && catalog[i].LongName == name {
			found = append(found, catalog[i])
			continue
		}
		missing = append(missing, name)
	}
	return found, missing
}

// splitName parses a "short|long" file name. Names without a separator
// are both.
func splitName(v string) (short, long string) {
	if i := strings.IndexByte(v, '|'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return v, v
}

// targetDirName extracts the long target name from a DefaultDir value of
// the form "target[:source]", where each side is "short|long". "." means
// the directory adds no segment.
func targetDirName(defaultDir string) string {
	target := defaultDir
	if i := strings.IndexByte(target, ':'); i >= 0 {
		target = target[:i]
	}
	_, long := splitName(target)
	if long == "." {
		return ""
	}
	return long
}

func readComponentDirectories(p *Package) (map[string]string, error) {
	comps, err := SnapshotTable(p, "Component")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: File table without Component table", ErrCorruptPackage)
		}
		return nil, err
	}
	dirs := make(map[string]string, len(comps.Rows))
	for _, row := range comps.Rows {
		dirs[comps.Text(row, "Component")] = comps.Text(row, "Directory_")
	}
	return dirs, nil
}

type directoryRow struct {
	parent     string
	defaultDir string
}

// directoryResolver walks the Directory table parent chain, memoizing the
// path of every directory it has resolved.
type directoryResolver struct {
	rows     map[string]directoryRow
	resolved map[string]string
	visiting map[string]bool
}

func newDirectoryResolver(p *Package) (*directoryResolver, error) {
	r := &directoryResolver{
		rows:     make(map[string]directoryRow),
		resolved: make(map[string]string),
		visiting: make(map[string]bool),
	}
	dirs, err := SnapshotTable(p, "Directory")
	if errors.Is(err, ErrNotFound) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	for _, row := range dirs.Rows {
		r.rows[dirs.Text(row, "Directory")] = directoryRow{
			parent:     dirs.Text(row, "Directory_Parent"),
			defaultDir: dirs.Text(row, "DefaultDir"),
		}
	}
	return r, nil
}

// resolve returns the slash separated path of directory id below the root.
// A root is a row whose parent is empty or itself and adds no segment.
func (r *directoryResolver) resolve(id string) (string, error) {
	if p, ok := r.resolved[id]; ok {
		return p, nil
	}
	row, ok := r.rows[id]
	if !ok {
		return "", fmt.Errorf("%w: unknown directory %q", ErrCorruptPackage, id)
	}
	if r.visiting[id] {
		return "", fmt.Errorf("%w: directory cycle at %q", ErrCorruptPackage, id)
	}
	r.visiting[id] = true
	defer delete(r.visiting, id)

	var p string
	if row.parent != "" && row.parent != id {
		parent, err := r.resolve(row.parent)
		if err != nil {
			return "", err
		}
		p = path.Join(parent, targetDirName(row.defaultDir))
	}
	r.resolved[id] = p
	return p, nil
}
