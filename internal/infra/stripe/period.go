package stripe

import (
	"errors"
	"time"

	stripeapi "github.com/stripe/stripe-go/v75"
)

// PeriodEnd returns when the subscription's current period lapses.
//
// current_period_end is preferred, but it has been observed missing on real
// events. The fallback derives it from start_date plus the price's billing
// interval times its count, which is what the period end would have been.
func PeriodEnd(sub *stripeapi.Subscription) (time.Time, error) {
	if sub == nil {
		return time.Time{}, errors.New("nil subscription")
	}
	if sub.CurrentPeriodEnd > 0 {
		return time.Unix(sub.CurrentPeriodEnd, 0), nil
	}

	if sub.StartDate <= 0 {
		return time.Time{}, errors.New("subscription has neither current_period_end nor start_date")
	}
	recurring := subscriptionRecurring(sub)
	if recurring == nil {
		return time.Time{}, errors.New("subscription has no recurring price to derive period end from")
	}

	start := time.Unix(sub.StartDate, 0)
	count := int(recurring.IntervalCount)
	if count <= 0 {
		count = 1
	}

	switch recurring.Interval {
	case stripeapi.PriceRecurringIntervalDay:
		return start.AddDate(0, 0, count), nil
	case stripeapi.PriceRecurringIntervalWeek:
		return start.AddDate(0, 0, 7*count), nil
	case stripeapi.PriceRecurringIntervalMonth:
		return start.AddDate(0, count, 0), nil
	case stripeapi.PriceRecurringIntervalYear:
		return start.AddDate(count, 0, 0), nil
	default:
		return time.Time{}, errors.New("unknown billing interval: " + string(recurring.Interval))
	}
}

// PriceID returns the subscription's first item price id, or "".
func PriceID(sub *stripeapi.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}

func subscriptionRecurring(sub *stripeapi.Subscription) *stripeapi.PriceRecurring {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return nil
	}
	return sub.Items.Data[0].Price.Recurring
}
