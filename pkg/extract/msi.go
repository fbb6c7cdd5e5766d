// pkg/extract/msi.go

package extract

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/windowsadmins/msiextract/pkg/msi"
)

// Metadata summarizes the Property table of a package.
type Metadata struct {
	ProductName    string `yaml:"product_name"`
	ProductVersion string `yaml:"product_version"`
	Manufacturer   string `yaml:"manufacturer,omitempty"`
	Description    string `yaml:"description,omitempty"`
	ProductCode    string `yaml:"product_code,omitempty"`
	UpgradeCode    string `yaml:"upgrade_code,omitempty"`
}

// MsiMetadata opens the package at msiPath and reads its metadata.
func MsiMetadata(msiPath string) (Metadata, error) {
	p, err := msi.Open(msiPath)
	if err != nil {
		return Metadata{}, err
	}
	defer p.Close()
	return ReadMetadata(p)
}

// ReadMetadata reads the product properties of an open package. A missing
// ProductName becomes "UnknownMSI".
func ReadMetadata(p *msi.Package) (Metadata, error) {
	props, err := msi.Properties(p)
	if err != nil {
		return Metadata{}, err
	}
	md := Metadata{
		ProductName:    strings.TrimSpace(props["ProductName"]),
		ProductVersion: NormalizeVersion(props["ProductVersion"]),
		Manufacturer:   strings.TrimSpace(props["Manufacturer"]),
		Description:    strings.TrimSpace(props["Comments"]),
		ProductCode:    strings.TrimSpace(props["ProductCode"]),
		UpgradeCode:    strings.TrimSpace(props["UpgradeCode"]),
	}
	if md.ProductName == "" {
		md.ProductName = "UnknownMSI"
	}
	return md, nil
}

// NormalizeVersion drops leading zeros from each version segment, so
// "1.02.0003" becomes "1.2.3". Values that are not versions are returned
// trimmed but otherwise unchanged.
func NormalizeVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	v, err := version.NewVersion(raw)
	if err != nil {
		return raw
	}
	// Segments pads to three parts; keep as many as were written.
	segs := v.Segments()
	core := strings.TrimPrefix(raw, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	segs = segs[:min(len(segs), strings.Count(core, ".")+1)]
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strconv.Itoa(s)
	}
	out := strings.Join(parts, ".")
	if pre := v.Prerelease(); pre != "" {
		out += "-" + pre
	}
	return out
}
