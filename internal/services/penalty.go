package services

import (
	"fmt"
	"time"

	"labloan/internal/config"
	"labloan/internal/models"
)

// ─── Penalty Calculation ──────────────────────────────────────────────────────

// PenaltyCalculation is the result of a penalty computation, usable both for
// preview/display and for persisting a PenaltyRecord amount.
type PenaltyCalculation struct {
	LateDays      int    `json:"late_days"`
	DailyRate     int    `json:"daily_rate"`
	LatePenalty   int    `json:"late_penalty"`
	DamagePenalty int    `json:"damage_penalty"`
	Total         int    `json:"total"`
	Reason        string `json:"reason"`
}

// CalculatePenalty computes the late and damage fees for a return. Pure
// function over the rule table; no clock, no store.
//
// Rules:
//   - Late days  : full calendar days between due date and return date
//     (midnight UTC truncation), minimum 1 once any overdue time exists.
//   - Late fee   : lateDays × daily rate for the category kind.
//   - Damage fee : fixed tier keyed by the normalized reported condition;
//     good or unrecognized conditions carry no fee.
func CalculatePenalty(rules config.Rules, dueDate, returnDate time.Time, kind models.CategoryKind, condition string) PenaltyCalculation {
	rate := rules.DailyRateFor(kind)
	return calculate(rules, dueDate, returnDate, rate, condition)
}

// CalculatePenaltyPreview is the name-keyed variant exposed to the API: the
// category arrives as free text and unknown names fall back to the default
// daily rate.
func CalculatePenaltyPreview(rules config.Rules, dueDate, returnDate time.Time, categoryName, condition string) PenaltyCalculation {
	rate := rules.DailyRateForName(categoryName)
	return calculate(rules, dueDate, returnDate, rate, condition)
}

func calculate(rules config.Rules, dueDate, returnDate time.Time, dailyRate int, condition string) PenaltyCalculation {
	lateDays := lateDaysBetween(dueDate, returnDate)
	cond := config.NormalizeCondition(condition)

	calc := PenaltyCalculation{
		LateDays:      lateDays,
		DailyRate:     dailyRate,
		LatePenalty:   lateDays * dailyRate,
		DamagePenalty: rules.DamageFeeFor(cond),
	}
	calc.Total = calc.LatePenalty + calc.DamagePenalty
	calc.Reason = penaltyReason(calc, cond)
	return calc
}

// lateDaysBetween counts full calendar days overdue, truncating both
// timestamps to midnight UTC so a same-day return after the due time is not
// over-counted, with a minimum of one day once any overdue time exists.
func lateDaysBetween(dueDate, returnDate time.Time) int {
	if !returnDate.After(dueDate) {
		return 0
	}

	dueMidnight := dueDate.UTC().Truncate(24 * time.Hour)
	returnedMidnight := returnDate.UTC().Truncate(24 * time.Hour)

	days := int(returnedMidnight.Sub(dueMidnight).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

func penaltyReason(calc PenaltyCalculation, cond config.Condition) string {
	switch {
	case calc.LatePenalty > 0 && calc.DamagePenalty > 0:
		return fmt.Sprintf("%d day(s) late; equipment reported %s", calc.LateDays, cond)
	case calc.LatePenalty > 0:
		return fmt.Sprintf("%d day(s) late", calc.LateDays)
	case calc.DamagePenalty > 0:
		return fmt.Sprintf("equipment reported %s", cond)
	default:
		return ""
	}
}
