package domain

import (
	"math"
	"math/big"
)

// DefaultXPBase is the curve constant: finishing level n takes base*n² total XP.
const DefaultXPBase int64 = 100

func normBase(base int64) int64 {
	if base <= 0 {
		return DefaultXPBase
	}
	return base
}

// HasLeveledUp reports whether xp reaches the threshold that ends currentLevel.
// Only the immediate next threshold is checked.
func HasLeveledUp(xp *big.Int, currentLevel, base int64) bool {
	lvl := big.NewInt(currentLevel)
	need := new(big.Int).Mul(lvl, lvl)
	need.Mul(need, big.NewInt(normBase(base)))
	return xp.Cmp(need) >= 0
}

// XPForLevel returns the cumulative XP at which level is reached.
func XPForLevel(level, base int64) *big.Int {
	if level <= 1 {
		return new(big.Int)
	}
	n := big.NewInt(level - 1)
	n.Mul(n, n)
	return n.Mul(n, big.NewInt(normBase(base)))
}

// LevelFromXP returns the highest level consistent with xp: floor(sqrt(xp/base))+1.
// The result is at least 1 and saturates at math.MaxInt64.
func LevelFromXP(xp *big.Int, base int64) int64 {
	if xp == nil || xp.Sign() <= 0 {
		return 1
	}
	q := new(big.Int).Quo(xp, big.NewInt(normBase(base)))
	root := new(big.Int).Sqrt(q)
	if !root.IsInt64() || root.Int64() == math.MaxInt64 {
		return math.MaxInt64
	}
	return root.Int64() + 1
}
