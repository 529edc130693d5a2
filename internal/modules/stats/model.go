// README: Driver statistics periods and earnings rules.
package stats

import (
	"time"

	"flashfood/internal/types"
)

// DeliveryWage is the fixed amount earned per delivered order.
const DeliveryWage int64 = 20

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Window returns the [start, end) range of the period containing now, in now's location.
// Weeks start on Monday.
func Window(p Period, now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

type Record struct {
	DriverID        types.ID
	Period          Period
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalDeliveries int
	TotalTips       int64
	TotalEarns      int64
	UpdatedAt       time.Time
}

// Earnings is wage per delivery plus tips.
func Earnings(deliveries int, tips int64) int64 {
	return int64(deliveries)*DeliveryWage + tips
}
