package tax

// Activity is a taxable income class.
type Activity string

const (
	ActivityBounty    Activity = "bounty"
	ActivityESS       Activity = "ess"
	ActivityMission   Activity = "mission"
	ActivityIncursion Activity = "incursion"
)

var refTypeActivities = map[string]Activity{
	"bounty_prizes":                   ActivityBounty,
	"ess_escrow_transfer":             ActivityESS,
	"agent_mission_reward":            ActivityMission,
	"agent_mission_time_bonus_reward": ActivityMission,
	"corporate_reward_payout":         ActivityIncursion,
}

// Activities lists every taxable activity in display order.
func Activities() []Activity {
	return []Activity{ActivityBounty, ActivityESS, ActivityMission, ActivityIncursion}
}

// Classify maps a wallet journal ref_type to its activity. The boolean is
// false for ref types that are not taxed at all.
func Classify(refType string) (Activity, bool) {
	activity, ok := refTypeActivities[refType]
	return activity, ok
}

// TaxedRefTypes returns the journal ref types that produce income entries.
func TaxedRefTypes() []string {
	types := make([]string, 0, len(refTypeActivities))
	for refType := range refTypeActivities {
		types = append(types, refType)
	}
	return types
}
