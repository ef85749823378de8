package config

import "time"

// IsTradingPeriod reports whether now falls inside one of the configured
// periods. With no periods configured, the supervisor runs all day, per
// the original watchdog's _is_trading_period default.
func IsTradingPeriod(periods []TradingPeriod, now time.Time) bool {
	if len(periods) == 0 {
		return true
	}

	current := now.Format("15:04")
	for _, p := range periods {
		if p.Start <= p.End {
			if p.Start <= current && current <= p.End {
				return true
			}
		} else {
			// Wraps past midnight, e.g. 21:00-02:30.
			if current >= p.Start || current <= p.End {
				return true
			}
		}
	}
	return false
}
