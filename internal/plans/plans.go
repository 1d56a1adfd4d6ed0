// Package plans is the static plan catalog. Plan limits are configuration,
// not user data, so they live in code rather than the database.
package plans

// Limits describes what a subscription plan allows.
type Limits struct {
	MaxKeywords         int
	MinIntervalMinutes  int
	MonthlyMentionQuota int64
}

const defaultPlan = "free"

var catalog = map[string]Limits{
	"free": {
		MaxKeywords:         3,
		MinIntervalMinutes:  60,
		MonthlyMentionQuota: 500,
	},
	"starter": {
		MaxKeywords:         10,
		MinIntervalMinutes:  15,
		MonthlyMentionQuota: 5000,
	},
	"growth": {
		MaxKeywords:         30,
		MinIntervalMinutes:  5,
		MonthlyMentionQuota: 50000,
	},
}

// ForPlan returns the limits for a plan name, falling back to the free plan
// when the name is unrecognized.
func ForPlan(name string) Limits {
	if l, ok := catalog[name]; ok {
		return l
	}
	return catalog[defaultPlan]
}

// ClampInterval raises an interval to the plan minimum.
func ClampInterval(plan string, minutes int) int {
	min := ForPlan(plan).MinIntervalMinutes
	if minutes < min {
		return min
	}
	return minutes
}
