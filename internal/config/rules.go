package config

import (
	"labloan/internal/models"
)

// Condition keywords recognized by the damage tier table. The original paper
// forms used Indonesian labels, so both spellings are accepted.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionMinor   Condition = "minor"
	ConditionMajor   Condition = "major"
	ConditionLost    Condition = "lost"
	ConditionUnknown Condition = "unknown"
)

// DamageTiers holds the fixed damage fee per reported condition.
type DamageTiers struct {
	Minor int
	Major int
	Lost  int
}

// Rules is the complete borrowing rule table. It is built once at startup and
// passed to every service constructor; nothing reads it through a global.
type Rules struct {
	// BorrowCaps limits concurrent APPROVED/ACTIVE borrowings per role.
	BorrowCaps map[models.UserRole]int
	// DefaultBorrowCap applies when the requester's role is not in BorrowCaps.
	DefaultBorrowCap int

	// MaxDurationDays is the longest allowed borrow window per category kind.
	MaxDurationDays map[models.CategoryKind]int

	// DailyRates is the late fee per day, in whole currency units.
	DailyRates map[models.CategoryKind]int
	// DefaultDailyRate applies when the category cannot be resolved.
	DefaultDailyRate int

	DamageTiers DamageTiers

	// AutoApproveMaxActive: requests from users with zero pending penalties
	// and strictly fewer than this many APPROVED/ACTIVE borrowings are
	// approved without admin review.
	AutoApproveMaxActive int

	// KindAliases resolves free-form category names (including the original
	// Indonesian labels) to a kind, for penalty previews that are given a
	// category name rather than a record.
	KindAliases map[string]models.CategoryKind
}

// DefaultRules returns the rule table with the institutional defaults.
func DefaultRules() Rules {
	return Rules{
		BorrowCaps: map[models.UserRole]int{
			models.UserRoleAdmin:   10,
			models.UserRoleFaculty: 5,
			models.UserRoleStudent: 3,
		},
		DefaultBorrowCap: 3,
		MaxDurationDays: map[models.CategoryKind]int{
			models.CategoryKindMustReturn: 7,
			models.CategoryKindConsumable: 3,
			models.CategoryKindSingleCopy: 3,
		},
		DailyRates: map[models.CategoryKind]int{
			models.CategoryKindMustReturn: 5000,
			models.CategoryKindConsumable: 0,
			models.CategoryKindSingleCopy: 10000,
		},
		DefaultDailyRate: 5000,
		DamageTiers: DamageTiers{
			Minor: 25000,
			Major: 100000,
			Lost:  500000,
		},
		AutoApproveMaxActive: 2,
		KindAliases: map[string]models.CategoryKind{
			"Harus Dikembalikan": models.CategoryKindMustReturn,
			"Habis Pakai":        models.CategoryKindConsumable,
			"Satu Salinan":       models.CategoryKindSingleCopy,
			"Must Return":        models.CategoryKindMustReturn,
			"Consumable":         models.CategoryKindConsumable,
			"Single Copy":        models.CategoryKindSingleCopy,
		},
	}
}

// BorrowCapFor returns the cap for a role, falling back to the default for
// roles not present in the table.
func (r Rules) BorrowCapFor(role models.UserRole) int {
	if limit, ok := r.BorrowCaps[role]; ok {
		return limit
	}
	return r.DefaultBorrowCap
}

// DailyRateFor returns the late fee per day for a kind.
func (r Rules) DailyRateFor(kind models.CategoryKind) int {
	if rate, ok := r.DailyRates[kind]; ok {
		return rate
	}
	return r.DefaultDailyRate
}

// DailyRateForName resolves a category name through KindAliases; unknown
// names fall back to the default rate, as the preview contract requires.
func (r Rules) DailyRateForName(name string) int {
	if kind, ok := r.KindAliases[name]; ok {
		return r.DailyRateFor(kind)
	}
	return r.DefaultDailyRate
}

// MaxDurationFor returns the longest borrow window for a kind, in days.
func (r Rules) MaxDurationFor(kind models.CategoryKind) int {
	if d, ok := r.MaxDurationDays[kind]; ok {
		return d
	}
	// Every defined kind has an entry; this is reached only for data created
	// outside the engine.
	return r.MaxDurationDays[models.CategoryKindMustReturn]
}

// DamageFeeFor returns the fixed damage fee for a normalized condition.
func (r Rules) DamageFeeFor(cond Condition) int {
	switch cond {
	case ConditionMinor:
		return r.DamageTiers.Minor
	case ConditionMajor:
		return r.DamageTiers.Major
	case ConditionLost:
		return r.DamageTiers.Lost
	default:
		return 0
	}
}

// NormalizeCondition maps a reported condition keyword (English or the
// original Indonesian) to a tier. Unrecognized input is treated as unknown,
// which carries no damage fee.
func NormalizeCondition(raw string) Condition {
	switch normalize(raw) {
	case "good", "baik", "ok", "":
		return ConditionGood
	case "minor", "rusak ringan", "ringan":
		return ConditionMinor
	case "major", "rusak berat", "berat":
		return ConditionMajor
	case "lost", "hilang":
		return ConditionLost
	default:
		return ConditionUnknown
	}
}
