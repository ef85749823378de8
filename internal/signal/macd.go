// Package signal turns an instrument's indicator snapshot into an
// opaque, strategy-defined open/close signal string. The framework
// itself never interprets a signal's contents: the naming convention
// (ACTION_REASON_DETAIL) is a convention for humans and downstream
// strategies, not a contract the engine parses.
package signal

import "optioncore/internal/instrument"

// PositionView is the minimal position state a signal service needs to
// decide whether to close.
type PositionView struct {
	Direction string // "long" or "short"
	OpenPrice float64
}

// Service generates open/close signals from an instrument's current
// indicator state.
type Service interface {
	CheckOpenSignal(target *instrument.Target) (string, bool)
	CheckCloseSignal(target *instrument.Target, position PositionView) (string, bool)
}

// MACDSignalService is a MACD-cross signal generator: golden cross opens
// long, death cross opens short (when enabled); the reverse cross closes
// an existing position.
type MACDSignalService struct {
	MACDBarThreshold  float64
	EnableShortSignal bool
}

// DefaultMACDSignalService mirrors the reference implementation's
// defaults: no bar-strength filter, short signals enabled.
func DefaultMACDSignalService() *MACDSignalService {
	return &MACDSignalService{MACDBarThreshold: 0, EnableShortSignal: true}
}

// CheckOpenSignal reports a golden-cross long signal or (if enabled) a
// death-cross short signal, filtered by MACDBarThreshold strength. It
// returns ok=false whenever the MACD indicator or its previous-bar values
// are not yet populated (e.g. right after the cold-start window).
func (s *MACDSignalService) CheckOpenSignal(target *instrument.Target) (string, bool) {
	dif, dea, macdBar, prevDif, prevDea, ok := readMACD(target)
	if !ok {
		return "", false
	}

	if prevDif <= prevDea && dif > dea {
		if macdBar > s.MACDBarThreshold {
			return "long_macd_golden_cross", true
		}
	}

	if s.EnableShortSignal && prevDif >= prevDea && dif < dea {
		if macdBar < -s.MACDBarThreshold {
			return "short_macd_death_cross", true
		}
	}

	return "", false
}

// CheckCloseSignal closes a long position on a death cross and a short
// position on a golden cross.
func (s *MACDSignalService) CheckCloseSignal(target *instrument.Target, position PositionView) (string, bool) {
	dif, dea, _, prevDif, prevDea, ok := readMACD(target)
	if !ok {
		return "", false
	}

	switch position.Direction {
	case "long":
		if prevDif >= prevDea && dif < dea {
			return "close_long_macd_death_cross", true
		}
	case "short":
		if prevDif <= prevDea && dif > dea {
			return "close_short_macd_golden_cross", true
		}
	}
	return "", false
}

func readMACD(target *instrument.Target) (dif, dea, macdBar, prevDif, prevDea float64, ok bool) {
	if target.Indicators == nil {
		return 0, 0, 0, 0, 0, false
	}
	var exists bool
	if dif, exists = target.Indicators["macd.dif"]; !exists {
		return 0, 0, 0, 0, 0, false
	}
	if dea, exists = target.Indicators["macd.dea"]; !exists {
		return 0, 0, 0, 0, 0, false
	}
	macdBar = target.Indicators["macd.macd_bar"]
	if prevDif, exists = target.Indicators["macd.prev_dif"]; !exists {
		return 0, 0, 0, 0, 0, false
	}
	if prevDea, exists = target.Indicators["macd.prev_dea"]; !exists {
		return 0, 0, 0, 0, 0, false
	}
	return dif, dea, macdBar, prevDif, prevDea, true
}
