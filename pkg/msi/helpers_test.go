package msi

import (
	"testing"

	"github.com/windowsadmins/msiextract/pkg/msidb"
	"github.com/windowsadmins/msiextract/pkg/msidb/msidbtest"
)

var (
	fileColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("File", 72)),
		msidbtest.Str("Component_", 72),
		msidbtest.Str("FileName", 255),
		msidbtest.Int4("FileSize"),
		msidbtest.Nullable(msidbtest.Str("Version", 72)),
		msidbtest.Nullable(msidbtest.Int2("Language")),
		msidbtest.Nullable(msidbtest.Int2("Attributes")),
		msidbtest.Int2("Sequence"),
	}
	componentColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("Component", 72)),
		msidbtest.Nullable(msidbtest.Str("ComponentId", 38)),
		msidbtest.Str("Directory_", 72),
	}
	directoryColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("Directory", 72)),
		msidbtest.Nullable(msidbtest.Str("Directory_Parent", 72)),
		msidbtest.Str("DefaultDir", 255),
	}
	mediaColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Int2("DiskId")),
		msidbtest.Int2("LastSequence"),
		msidbtest.Nullable(msidbtest.Str("DiskPrompt", 64)),
		msidbtest.Nullable(msidbtest.Str("Cabinet", 255)),
		msidbtest.Nullable(msidbtest.Str("VolumeLabel", 32)),
		msidbtest.Nullable(msidbtest.Str("Source", 72)),
	}
	propertyColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("Property", 72)),
		msidbtest.Str("Value", 0),
	}
)

func openPackage(t *testing.T, b *msidbtest.Builder) *Package {
	t.Helper()
	p := NewPackage("sample.msi", b.Database(t))
	t.Cleanup(func() { p.Close() })
	return p
}

// installerPackage lays out
//
//	TARGETDIR (SourceDir)
//	  ProgramFilesFolder (.)
//	    INSTALLDIR  PROGRA~1|Product
//	      BIN       bin
//	      DOCS      DOCS|Documentation:docsrc
func installerPackage() *msidbtest.Builder {
	return msidbtest.New().
		Table("Directory", directoryColumns,
			[]any{"TARGETDIR", nil, "SourceDir"},
			[]any{"ProgramFilesFolder", "TARGETDIR", "."},
			[]any{"INSTALLDIR", "ProgramFilesFolder", "PROGRA~1|Product"},
			[]any{"BIN", "INSTALLDIR", "bin"},
			[]any{"DOCS", "INSTALLDIR", "DOCS|Documentation:docsrc"},
		).
		Table("Component", componentColumns,
			[]any{"Main", "{11111111-1111-1111-1111-111111111111}", "BIN"},
			[]any{"Docs", nil, "DOCS"},
			[]any{"Root", nil, "TARGETDIR"},
		).
		Table("File", fileColumns,
			[]any{"app.exe", "Main", "APP.EXE|app.exe", 1024, "1.2.3.4", 1033, 512, 2},
			[]any{"readme", "Docs", "README.TXT|readme.txt", 10, nil, nil, nil, 10},
			[]any{"lib.dll", "Main", "lib.dll", 2048, "1.0.0.0", 0, nil, 1},
			[]any{"top", "Root", "top.ini", 1, nil, nil, nil, 3},
		).
		Table("Media", mediaColumns,
			[]any{2, 10, nil, "ext.cab", nil, nil},
			[]any{1, 3, "Product disk", "#data1.cab", "DISK1", nil},
			[]any{3, 10, nil, nil, nil, nil},
		).
		Table("Property", propertyColumns,
			[]any{"ProductName", "Product"},
			[]any{"ProductVersion", "1.2.3"},
		)
}
