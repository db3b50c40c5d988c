package htab

import (
	"github.com/zeebo/xxh3"
)

// hashSeed is the process-global seed folded into the byte hashers. It
// exists to keep bucket distribution unpredictable to adversaries that
// can choose keys, and must be set before the first table is created;
// tests fix it for determinism.
var hashSeed uint64

// SetHashSeed sets the process-global hash seed.
func SetHashSeed(seed uint64) { hashSeed = seed }

// GetHashSeed returns the process-global hash seed.
func GetHashSeed() uint64 { return hashSeed }

// Hash is the default hasher for binary keys: seeded xxh3 folded to 32
// bits.
func Hash(b []byte) uint32 {
	return uint32(xxh3.HashSeed(b, hashSeed))
}

// HashString is Hash for string keys, without copying.
func HashString(s string) uint32 {
	return uint32(xxh3.HashStringSeed(s, hashSeed))
}

// CaseHash hashes binary keys case-insensitively: ASCII letters are
// lowercased before hashing. Keys that differ only in case collide on
// purpose, for tables whose compare hook ignores case.
func CaseHash(b []byte) uint32 {
	lower := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return Hash(lower)
}

// IntHash mixes a 32-bit integer key.
func IntHash(key uint32) uint32 {
	key += ^(key << 15)
	key ^= key >> 10
	key += key << 3
	key ^= key >> 6
	key += ^(key << 11)
	key ^= key >> 16
	return key
}

// StringKeys returns a Type for plain string keys compared with == and
// hashed with the seeded default hasher. Values are unmanaged.
func StringKeys() *Type {
	return &Type{
		Hash:       func(key any) uint32 { return HashString(key.(string)) },
		KeyCompare: func(_, a, b any) bool { return a.(string) == b.(string) },
	}
}

// IntKeys returns a Type for uint32 keys. Values are unmanaged.
func IntKeys() *Type {
	return &Type{
		Hash:       func(key any) uint32 { return IntHash(key.(uint32)) },
		KeyCompare: func(_, a, b any) bool { return a.(uint32) == b.(uint32) },
	}
}
