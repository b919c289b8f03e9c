package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON renders v as deterministic JSON: struct fields in
// declaration order, map keys sorted, floats in shortest round-trip form,
// no HTML escaping, no trailing newline. Identical logical payloads always
// produce identical bytes, so their digests always match.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode appends a newline; strip it so the bytes are exactly the document.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HashPayload returns the hex-encoded SHA-256 of the canonical
// serialization of v.
func HashPayload(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the hex-encoded SHA-256 of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
