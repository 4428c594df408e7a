package loopdetect

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/speakeasy-api/loopguard"
)

// Fingerprinter hashes the shape of symbolic expressions: operators,
// literal values and variable keys, but not the values identifiers held.
// Two frames whose conditions share a fingerprint took the same path.
type Fingerprinter struct {
	cache map[Expr]string
}

func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{cache: make(map[Expr]string, 256)}
}

// Fingerprint returns a hex digest of e's shape.
func (fp *Fingerprinter) Fingerprint(e Expr) string {
	if e == nil {
		return "none"
	}
	if sum, ok := fp.cache[e]; ok {
		return sum
	}
	var b strings.Builder
	canonicalize(&b, e)
	sum := sha256.Sum256([]byte(b.String()))
	digest := hex.EncodeToString(sum[:])
	fp.cache[e] = digest
	return digest
}

// Signature fingerprints an ordered list of path conditions.
func (fp *Fingerprinter) Signature(paths []Expr) string {
	if len(paths) == 0 {
		return ""
	}
	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[i] = fp.Fingerprint(p)
	}
	return strings.Join(parts, ",")
}

// Reset clears the cache.
func (fp *Fingerprinter) Reset() {
	fp.cache = make(map[Expr]string, 256)
}

func canonicalize(b *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *Literal:
		b.WriteString("lit:")
		b.WriteString(loopguard.TypeName(e.Val))
		b.WriteByte(':')
		b.WriteString(loopguard.Stringify(e.Val))
	case *Ident:
		b.WriteString("id:")
		b.WriteString(e.Name)
	case *Unknown:
		b.WriteString("unknown")
	case *Unary:
		b.WriteString("u:")
		b.WriteString(e.Op)
		b.WriteByte('(')
		canonicalize(b, e.X)
		b.WriteByte(')')
	case *Binary:
		b.WriteString("b:")
		b.WriteString(e.Op)
		b.WriteByte('(')
		canonicalize(b, e.Left)
		b.WriteByte(',')
		canonicalize(b, e.Right)
		b.WriteByte(')')
	}
	b.WriteByte(';')
}
