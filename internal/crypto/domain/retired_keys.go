package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/allisson/tenantconfig/internal/errors"
)

// RetiredKeysConfigKey is the global config key holding the retired key registry.
const RetiredKeysConfigKey = "crypto.retired_keys"

// ErrInvalidRetiredKeys indicates a registry value in neither the JSON nor the legacy format.
var ErrInvalidRetiredKeys = errors.Wrap(errors.ErrInvalidInput, "invalid retired key registry")

// RetiredKey records a KEK that was demoted by a rotation. Only the fingerprint is
// kept so operators can tell which key an old backup needs.
type RetiredKey struct {
	Fingerprint string    `json:"fingerprint"`
	RetiredAt   time.Time `json:"retired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (r RetiredKey) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// ParseRetiredKeys reads the registry. Two encodings are accepted: a JSON array of
// RetiredKey, and the older "fingerprint:unix-expiry" pairs separated by "," or ";".
// An empty value is an empty registry.
func ParseRetiredKeys(raw []byte) ([]RetiredKey, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var keys []RetiredKey
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRetiredKeys, err)
		}
		return keys, nil
	}

	// legacy values were sometimes stored as a JSON string
	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRetiredKeys, err)
		}
	}
	return parseLegacyRetiredKeys(text)
}

func parseLegacyRetiredKeys(text string) ([]RetiredKey, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ';' })
	keys := make([]RetiredKey, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		fp, expiry, ok := strings.Cut(field, ":")
		if !ok || fp == "" {
			return nil, fmt.Errorf("%w: entry %q", ErrInvalidRetiredKeys, field)
		}
		unix, err := strconv.ParseInt(strings.TrimSpace(expiry), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidRetiredKeys, field, err)
		}
		keys = append(keys, RetiredKey{
			Fingerprint: strings.TrimSpace(fp),
			ExpiresAt:   time.Unix(unix, 0).UTC(),
		})
	}
	return keys, nil
}

// MarshalRetiredKeys writes the registry in the JSON format, ordered by expiry.
func MarshalRetiredKeys(keys []RetiredKey) ([]byte, error) {
	if keys == nil {
		keys = []RetiredKey{}
	}
	sorted := make([]RetiredKey, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ExpiresAt.Before(sorted[j].ExpiresAt) })
	return json.Marshal(sorted)
}

// PruneRetiredKeys returns the entries still valid at now and the number removed.
func PruneRetiredKeys(keys []RetiredKey, now time.Time) ([]RetiredKey, int) {
	kept := make([]RetiredKey, 0, len(keys))
	for _, k := range keys {
		if !k.Expired(now) {
			kept = append(kept, k)
		}
	}
	return kept, len(keys) - len(kept)
}
