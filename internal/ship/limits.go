package ship

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solvane/solvane/internal/protocol"
)

// Item version bits for limits matching. A limits entry bans an item code
// for the versions named in its mask.
const (
	ItemVersionV1 uint32 = 1 << iota
	ItemVersionV2
	ItemVersionGC
)

// itemVersion maps a client variant onto its item version bit.
func itemVersion(v protocol.Variant) uint32 {
	switch v {
	case protocol.VariantDCv1:
		return ItemVersionV1
	case protocol.VariantDCv2, protocol.VariantPC:
		return ItemVersionV2
	default:
		return ItemVersionGC
	}
}

// Limits is a loaded item restriction list. Items are matched on the
// low 24 bits of the first data dword, the item code.
type Limits struct {
	Name string

	banned map[uint32]uint32
}

type limitsFile struct {
	Name   string `yaml:"name"`
	Banned []struct {
		Code     uint32   `yaml:"code"`
		Versions []string `yaml:"versions"`
	} `yaml:"banned"`
}

// LoadLimits reads an item restriction list from a YAML file.
func LoadLimits(path string) (*Limits, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading limits file: %w", err)
	}

	var f limitsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing limits file %s: %w", path, err)
	}

	l := &Limits{Name: f.Name, banned: make(map[uint32]uint32, len(f.Banned))}
	for _, e := range f.Banned {
		mask, err := versionMask(e.Versions)
		if err != nil {
			return nil, fmt.Errorf("limits entry %06x: %w", e.Code, err)
		}
		l.banned[e.Code&0x00FFFFFF] |= mask
	}
	return l, nil
}

func versionMask(names []string) (uint32, error) {
	if len(names) == 0 {
		// No versions named bans the item everywhere.
		return ItemVersionV1 | ItemVersionV2 | ItemVersionGC, nil
	}
	var mask uint32
	for _, name := range names {
		switch name {
		case "v1":
			mask |= ItemVersionV1
		case "v2":
			mask |= ItemVersionV2
		case "gc":
			mask |= ItemVersionGC
		default:
			return 0, fmt.Errorf("unknown version %q", name)
		}
	}
	return mask, nil
}

// CheckItem reports whether an item is allowed for the given item version.
func (l *Limits) CheckItem(item Item, version uint32) bool {
	mask, ok := l.banned[item.Data[0]&0x00FFFFFF]
	if !ok {
		return true
	}
	return mask&version == 0
}
