package secdns

import (
	"fmt"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Variant is which secDNS version a command carries.
type Variant int

const (
	VariantNone Variant = iota
	VariantV10
	VariantV11
	// VariantConflict means both versions are present, which is never valid.
	VariantConflict
)

func (v Variant) String() string {
	switch v {
	case VariantNone:
		return "none"
	case VariantV10:
		return "secDNS-1.0"
	case VariantV11:
		return "secDNS-1.1"
	case VariantConflict:
		return "conflict"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ConflictReason is the diagnostic returned when both versions are present.
const ConflictReason = "secDNS-1.0 and secDNS-1.1 extensions are mutually exclusive; send exactly one version"

// Detect inspects command extensions and returns the secDNS variant present.
func Detect(exts []codec.Component) Variant {
	var v10, v11 bool
	for _, ext := range exts {
		if ext == nil {
			continue
		}
		switch ext.Namespace() {
		case NamespaceV10:
			v10 = true
		case NamespaceV11:
			v11 = true
		}
	}
	switch {
	case v10 && v11:
		return VariantConflict
	case v10:
		return VariantV10
	case v11:
		return VariantV11
	default:
		return VariantNone
	}
}

// VariantFor picks the response version for a session that announced the
// given extension URIs, preferring 1.1.
func VariantFor(extURIs []string) Variant {
	var v10 bool
	for _, uri := range extURIs {
		switch uri {
		case NamespaceV11:
			return VariantV11
		case NamespaceV10:
			v10 = true
		}
	}
	if v10 {
		return VariantV10
	}
	return VariantNone
}

// UpgradeV10 converts a 1.0 create into the 1.1 shape.
func UpgradeV10(c *CreateV10) *CreateV11 {
	ds, life := SplitMaxSigLife(c.DSData)
	return &CreateV11{MaxSigLife: life, DSData: ds}
}

// SplitMaxSigLife strips per-record maxSigLife from 1.0 records. The
// single 1.1 value is the largest one seen.
func SplitMaxSigLife(in []DSData) ([]DSData, int) {
	out := make([]DSData, 0, len(in))
	life := 0
	for _, ds := range in {
		if ds.MaxSigLife > life {
			life = ds.MaxSigLife
		}
		ds.MaxSigLife = 0
		out = append(out, ds)
	}
	return out, life
}
