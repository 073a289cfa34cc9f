package shipping

import (
	"sort"
	"strings"
)

// ServiceLevel is the carrier-agnostic tier a quote belongs to. Only the
// three canonical tiers are offered to users; everything else a gateway
// returns (freight, media mail, regional boxes) is filtered out.
type ServiceLevel string

const (
	LevelEconomy  ServiceLevel = "economy"
	LevelPriority ServiceLevel = "priority"
	LevelExpress  ServiceLevel = "express"
	LevelOther    ServiceLevel = "other"
)

// classifyServiceLevel buckets a gateway service level into a generic tier
// using the token first and the display name as a fallback.
func classifyServiceLevel(token, name string) ServiceLevel {
	t := strings.ToLower(token)
	n := strings.ToLower(name)
	switch {
	case containsAny(t, n, "express", "overnight", "next_day", "next day"):
		return LevelExpress
	case containsAny(t, n, "priority", "2nd_day", "second day"):
		return LevelPriority
	case containsAny(t, n, "ground", "economy", "advantage", "first", "standard"):
		return LevelEconomy
	}
	return LevelOther
}

func containsAny(token, name string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(token, needle) || strings.Contains(name, needle) {
			return true
		}
	}
	return false
}

// EligibleRates filters quotes to the allowed tiers and sorts them by price
// ascending. An empty result is a legitimate outcome the caller must surface
// as "no rates available", not an error.
func EligibleRates(quotes []RateQuote) []RateQuote {
	eligible := make([]RateQuote, 0, len(quotes))
	for _, q := range quotes {
		switch q.Level {
		case LevelEconomy, LevelPriority, LevelExpress:
			eligible = append(eligible, q)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].AmountCents < eligible[j].AmountCents
	})
	return eligible
}
