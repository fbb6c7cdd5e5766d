package msi

import (
	"errors"
	"sort"
	"strings"
)

// EmbeddedPrefix marks a Media cabinet stored inside the package.
const EmbeddedPrefix = "#"

// MediaEntry is one row of the Media table.
type MediaEntry struct {
	DiskID int
	// LastSequence is the highest file sequence on this disk. Extraction
	// hands every cabinet to the codec at once and does not use it.
	LastSequence int
	Cabinet      string
	DiskPrompt   string
	VolumeLabel  string
}

// HasCabinet reports whether the disk declares a cabinet at all.
func (m MediaEntry) HasCabinet() bool {
	return m.Cabinet != ""
}

// Embedded reports whether the cabinet is stored inside the package.
func (m MediaEntry) Embedded() bool {
	return strings.HasPrefix(m.Cabinet, EmbeddedPrefix)
}

// CabinetName is the cabinet name without the embedded marker.
func (m MediaEntry) CabinetName() string {
	return strings.TrimPrefix(m.Cabinet, EmbeddedPrefix)
}

// ReadMedia returns the Media table ordered by disk id. A package without
// a Media table has no cabinets.
func ReadMedia(p *Package) ([]MediaEntry, error) {
	media, err := SnapshotTable(p, "Media")
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]MediaEntry, 0, len(media.Rows))
	for _, row := range media.Rows {
		entries = append(entries, MediaEntry{
			DiskID:       media.Int(row, "DiskId"),
			LastSequence: media.Int(row, "LastSequence"),
			Cabinet:      media.Text(row, "Cabinet"),
			DiskPrompt:   media.Text(row, "DiskPrompt"),
			VolumeLabel:  media.Text(row, "VolumeLabel"),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].DiskID < entries[j].DiskID })
	return entries, nil
}
