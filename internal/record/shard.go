package record

import "fmt"

// FNV-1a parameters; only the low 16 bits of the running hash are kept.
const (
	fnvOffsetBasis uint32 = 2166136261
	fnvPrime       uint32 = 16777619
)

// ShardPath derives the two directory segments an account's record lives
// under. Deterministic per name; collisions just share a directory. The
// manager account is pinned to a fixed shard so its location never depends
// on its configurable name.
func ShardPath(user, managerAccount string) (string, string) {
	if user == managerAccount {
		return "00", "00"
	}
	hash := fnvOffsetBasis
	for _, cp := range user {
		hash *= fnvPrime
		hash ^= uint32(cp)
	}
	hex := fmt.Sprintf("%04X", hash&0xFFFF)
	return hex[:2], hex[2:]
}
