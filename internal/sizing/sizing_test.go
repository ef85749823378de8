package sizing

import "testing"

func TestCalculateOpenVolumeRespectsMaxPositions(t *testing.T) {
	s := NewService().WithLimits(Limits{MaxPositions: 1, GlobalDailyOpenCap: 50, ContractDailyOpenCap: 2})
	existing := []PositionView{{VtSymbol: "IO2501-C-4000", Volume: 1, IsActive: true}}

	_, ok := s.CalculateOpenVolume(100000, "sell_premium", "IO2502-C-4000", 50, existing, 0, 0)
	if ok {
		t.Fatal("expected rejection: at max position count")
	}
}

func TestCalculateOpenVolumeRejectsDuplicateSymbol(t *testing.T) {
	s := NewService()
	existing := []PositionView{{VtSymbol: "IO2501-C-4000", Volume: 1, IsActive: true}}
	_, ok := s.CalculateOpenVolume(100000, "sell_premium", "IO2501-C-4000", 50, existing, 0, 0)
	if ok {
		t.Fatal("expected rejection: duplicate contract")
	}
}

func TestCalculateOpenVolumeRespectsDailyCap(t *testing.T) {
	s := NewService()
	_, ok := s.CalculateOpenVolume(100000, "sell_premium", "IO2501-C-4000", 50, nil, 50, 0)
	if ok {
		t.Fatal("expected rejection: global daily cap reached")
	}
}

func TestCalculateOpenVolumeRespectsContractCap(t *testing.T) {
	s := NewService()
	_, ok := s.CalculateOpenVolume(100000, "sell_premium", "IO2501-C-4000", 50, nil, 0, 2)
	if ok {
		t.Fatal("expected rejection: per-contract daily cap reached")
	}
}

func TestCalculateOpenVolumeSucceeds(t *testing.T) {
	s := NewService()
	instr, ok := s.CalculateOpenVolume(100000, "sell_premium", "IO2501-C-4000", 50, nil, 0, 0)
	if !ok {
		t.Fatal("expected approval")
	}
	if instr.Direction != Short || instr.Offset != Open || instr.Volume != 1 {
		t.Fatalf("unexpected instruction: %+v", instr)
	}
}

func TestCalculateCloseVolumeSkipsInactive(t *testing.T) {
	s := NewService()
	_, ok := s.CalculateCloseVolume(PositionView{VtSymbol: "x", Volume: 1, IsActive: false}, 10, "stop_loss")
	if ok {
		t.Fatal("expected rejection: inactive position")
	}
}

func TestCalculateCloseVolumeFull(t *testing.T) {
	s := NewService()
	instr, ok := s.CalculateCloseVolume(PositionView{VtSymbol: "x", Volume: 3, IsActive: true}, 10, "stop_loss")
	if !ok {
		t.Fatal("expected approval")
	}
	if instr.Volume != 3 || instr.Direction != Long || instr.Offset != Close {
		t.Fatalf("unexpected instruction: %+v", instr)
	}
}
