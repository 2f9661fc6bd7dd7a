package validate

import (
	"fmt"
	"hash/maphash"
	"strings"
	"time"

	"github.com/JonMunkholm/campusetl/internal/clean"
)

// ReasonDuplicateKey is reported for second and later rows sharing a key.
const ReasonDuplicateKey = "duplicate key"

// KeyTracker detects repeated unique keys across a run. Keys are indexed by
// a 64-bit hash and a hit is confirmed against the stored key, so a hash
// collision never marks a distinct key as a duplicate. Memory grows with
// distinct keys rather than rows. Rows with a null key component are never
// duplicates.
type KeyTracker struct {
	field   string
	indexes []int
	hash    func(string) uint64
	seen    map[uint64]string
	// collided holds keys whose hash was already taken by another key.
	collided map[string]struct{}
	dupes    int
}

// NewKeyTracker returns a tracker over the named fields of schema, or nil
// when fields is empty. Fields missing from schema are ignored.
func NewKeyTracker(fields []string, schema *clean.Schema) *KeyTracker {
	if len(fields) == 0 {
		return nil
	}
	seed := maphash.MakeSeed()
	k := &KeyTracker{
		field: strings.Join(fields, "+"),
		hash:  func(s string) uint64 { return maphash.String(seed, s) },
		seen:  make(map[uint64]string),
	}
	for _, f := range fields {
		if i, ok := schema.Index(f); ok {
			k.indexes = append(k.indexes, i)
		}
	}
	return k
}

// Check records row's key and returns a *FieldError if the key was seen
// before. A nil tracker accepts every row.
func (k *KeyTracker) Check(row clean.Row) *FieldError {
	if k == nil || len(k.indexes) == 0 {
		return nil
	}

	parts := make([]string, len(k.indexes))
	for i, idx := range k.indexes {
		if idx >= len(row.Values) || row.Values[idx] == nil {
			return nil
		}
		parts[i] = keyString(row.Values[idx])
	}
	key := strings.Join(parts, "\x1f")

	if !k.remember(key) {
		k.dupes++
		return &FieldError{
			Line:   row.Line,
			Field:  k.field,
			Reason: ReasonDuplicateKey,
			Value:  strings.Join(parts, ", "),
		}
	}
	return nil
}

// remember adds key and reports whether it was new.
func (k *KeyTracker) remember(key string) bool {
	h := k.hash(key)
	first, taken := k.seen[h]
	if !taken {
		k.seen[h] = key
		return true
	}
	if first == key {
		return false
	}
	if _, dup := k.collided[key]; dup {
		return false
	}
	if k.collided == nil {
		k.collided = make(map[string]struct{})
	}
	k.collided[key] = struct{}{}
	return true
}

// Duplicates returns the number of duplicate rows seen.
func (k *KeyTracker) Duplicates() int {
	if k == nil {
		return 0
	}
	return k.dupes
}

func keyString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
