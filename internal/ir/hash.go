package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTemplate = "powsim/template/v1"
	DomainInput    = "powsim/input/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TemplateHash returns the content address of template source text.
// The source is NFC normalized so visually identical templates hash equal.
func TemplateHash(source string) string {
	return hashWithDomain(DomainTemplate, []byte(norm.NFC.String(source)))
}

// InputHash returns the content address of an input description.
// Key order and number spelling do not affect the hash.
func InputHash(input map[string]any) (string, error) {
	canonical, err := MarshalCanonical(input)
	if err != nil {
		return "", fmt.Errorf("InputHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInput, canonical), nil
}
