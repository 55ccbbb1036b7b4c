package protocol

// Variant identifies which client build a connection speaks. The login
// server infers the variant from the listener that accepted the connection;
// it is never re-derived from packet contents.
type Variant int

const (
	VariantDCv1 Variant = iota
	VariantDCv2
	VariantPC
	VariantGC
	VariantGCEU60
	VariantGCEU50
	VariantGCJP10
	VariantGCJP11
	VariantEp3

	VariantCount
)

// CipherFamily selects which keystream generator a variant uses.
type CipherFamily int

const (
	CipherPC CipherFamily = iota
	CipherGC
)

// HeaderSize is the client packet header size. Every supported variant uses
// a 4-byte header; only the field layout differs (see ParseHeader).
const HeaderSize = 4

var variantNames = [VariantCount]string{
	"dcv1", "dcv2", "pc", "gc-us", "gc-eu-60", "gc-eu-50",
	"gc-jp-1.0", "gc-jp-1.1", "ep3",
}

func (v Variant) String() string {
	if v < 0 || v >= VariantCount {
		return "unknown"
	}
	return variantNames[v]
}

// Cipher returns the keystream family for the variant. The Dreamcast and PC
// builds share one generator; every GameCube build, Episode 3 included,
// shares the other.
func (v Variant) Cipher() CipherFamily {
	switch v {
	case VariantGC, VariantGCEU60, VariantGCEU50, VariantGCJP10, VariantGCJP11, VariantEp3:
		return CipherGC
	default:
		return CipherPC
	}
}

// PortOffset is added to a ship's base port when redirecting this variant.
func (v Variant) PortOffset() uint16 {
	return uint16(v)
}
