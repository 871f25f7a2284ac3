package dispatch

import (
	"crypto/rand"
	"io"
	"math/big"
	"strings"
)

// CodeGenerator draws short numeric pickup codes from crypto/rand.
// Codes are scoped to a single active ride, so collisions across rides
// are acceptable.
type CodeGenerator struct {
	length int
	rander io.Reader
}

// NewCodeGenerator creates a generator for codes of the given length
func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = 4
	}
	return &CodeGenerator{length: length, rander: rand.Reader}
}

// Generate returns a fresh code of decimal digits
func (g *CodeGenerator) Generate() (string, error) {
	var sb strings.Builder
	sb.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(g.rander, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
