// Package msi reads the logical content of Windows Installer packages:
// table snapshots, the file catalog, media and properties.
package msi

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/windowsadmins/msiextract/pkg/msidb"
)

// Database is the read-only relational driver a Package queries.
// *msidb.Database satisfies it.
type Database interface {
	Tables() []string
	OpenView(query string) (*msidb.View, error)
	Close() error
}

// Package is an open MSI or MSM file. It is owned by one caller and must
// be closed when the operation ends.
type Package struct {
	path string
	db   Database
}

// Open opens the package at path read-only.
func Open(path string) (*Package, error) {
	db, err := msidb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return &Package{path: path, db: db}, nil
}

// NewPackage wraps an already open database. path is used to locate
// external cabinets and for the compound file fallback.
func NewPackage(path string, db Database) *Package {
	return &Package{path: path, db: db}
}

// Path returns the package file path.
func (p *Package) Path() string {
	return p.path
}

// Dir returns the directory holding the package.
func (p *Package) Dir() string {
	return filepath.Dir(p.path)
}

// Tables lists the user tables of the database.
func (p *Package) Tables() []string {
	return p.db.Tables()
}

// HasTable reports whether the database declares table.
func (p *Package) HasTable(table string) bool {
	for _, t := range p.db.Tables() {
		if t == table {
			return true
		}
	}
	return false
}

// Query runs a statement against the database. A missing table is
// reported as ErrNotFound, every other failure as ErrDatabase.
func (p *Package) Query(query string) (*msidb.View, error) {
	v, err := p.db.OpenView(query)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, msidb.ErrTableNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
}

// SelectAll returns every row of table.
func (p *Package) SelectAll(table string) (*msidb.View, error) {
	return p.Query(fmt.Sprintf("SELECT * FROM `%s`", table))
}

// Close releases the database handle.
func (p *Package) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
