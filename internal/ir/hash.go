package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// allows a future change of algorithm.
const (
	DomainScenario = "tempo/scenario/v1"
	DomainTrace    = "tempo/trace/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as hex. The null
// separator prevents ambiguity at the domain/data boundary.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes the canonical JSON of v under domain.
func HashCanonical(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}

// ScenarioHash computes the content-addressed identity of a scenario. Two
// documents that decode to the same scenario have the same hash, whatever
// their source format.
func ScenarioHash(sc *Scenario) (string, error) {
	// Round trip through encoding/json to get a generic tree; Time and
	// Literal know how to write themselves.
	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("ScenarioHash: %w", err)
	}
	var tree Literal
	if err := json.Unmarshal(data, &tree); err != nil {
		return "", fmt.Errorf("ScenarioHash: %w", err)
	}
	return HashCanonical(DomainScenario, tree.V)
}

// MustScenarioHash is like ScenarioHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustScenarioHash(sc *Scenario) string {
	h, err := ScenarioHash(sc)
	if err != nil {
		panic(err)
	}
	return h
}
