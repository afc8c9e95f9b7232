// Package codegen builds human-readable unique identifiers such as
// PAT-20250131-7KQ2MX and RCP-20250131-9F3ZT8WQ2A.
package codegen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Alphabet omits 0/O and 1/I so codes survive being read aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Random returns n characters drawn uniformly from Alphabet.
func Random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// len(Alphabet) is 32, so masking keeps the distribution uniform.
	for i, b := range buf {
		buf[i] = Alphabet[b&31]
	}
	return string(buf), nil
}

// Generator produces <Prefix>-<YYYYMMDD>-<random> codes. The date is taken
// in Location (UTC when nil).
type Generator struct {
	Prefix   string
	Length   int
	Location *time.Location
	Now      func() time.Time
}

func (g Generator) Next() (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	suffix, err := Random(g.Length)
	if err != nil {
		return "", err
	}
	parts := []string{now().In(loc).Format("20060102"), suffix}
	if g.Prefix != "" {
		parts = append([]string{g.Prefix}, parts...)
	}
	return strings.Join(parts, "-"), nil
}
