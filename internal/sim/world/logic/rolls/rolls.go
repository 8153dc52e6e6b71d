// Package rolls provides the deterministic dice used by combat, gathering and NPC wandering.
// Every roll is a pure function of (seed, tick, key, salt) so replays reproduce outcomes
// independent of iteration order.
package rolls

import "hash/fnv"

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// Hash returns a well-mixed 64-bit value.
func Hash(seed int64, tick uint64, key string, salt uint64) uint64 {
	v := uint64(seed) ^ (tick * 0x9e3779b97f4a7c15) ^ (hashKey(key) * 0xc2b2ae3d27d4eb4f) ^ (salt * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Intn returns a value in [0, n). n <= 0 yields 0.
func Intn(seed int64, tick uint64, key string, salt uint64, n int) int {
	if n <= 0 {
		return 0
	}
	return int(Hash(seed, tick, key, salt) % uint64(n))
}

// Permille succeeds with probability p/1000. p >= 1000 always succeeds.
func Permille(seed int64, tick uint64, key string, salt uint64, p int) bool {
	if p >= 1000 {
		return true
	}
	if p <= 0 {
		return false
	}
	return Intn(seed, tick, key, salt, 1000) < p
}

const (
	saltAttack  = 1
	saltDefence = 2
	saltDamage  = 3
)

// Swing resolves one attack: the attacker hits when its roll beats the defender's roll,
// dealing 1..maxHit damage.
func Swing(seed int64, tick uint64, attacker, defender string, attack, defence, maxHit int) (hit bool, damage int) {
	key := attacker + ">" + defender
	a := Intn(seed, tick, key, saltAttack, attack+1)
	d := Intn(seed, tick, key, saltDefence, defence+1)
	if a <= d {
		return false, 0
	}
	if maxHit < 1 {
		maxHit = 1
	}
	return true, 1 + Intn(seed, tick, key, saltDamage, maxHit)
}

// GatherChance is the per-attempt success permille for a node with base chance base, boosted
// by levels above the requirement (+20 permille per level) and capped at 1000.
func GatherChance(base, level, required int) int {
	c := base
	if level > required {
		c += (level - required) * 20
	}
	if c > 1000 {
		c = 1000
	}
	return c
}
