package domain

import "testing"

func TestPriorityWeight(t *testing.T) {
	tests := []struct {
		p    Priority
		want int
	}{
		{PriorityHigh, 3},
		{PriorityMedium, 2},
		{PriorityLow, 1},
		{Priority("urgent"), 0},
	}
	for _, tt := range tests {
		if got := tt.p.Weight(); got != tt.want {
			t.Errorf("Priority(%q).Weight() = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestPortfolioActiveFilters(t *testing.T) {
	p := &Portfolio{
		Positions: []Position{
			{PoolID: "a", Status: StatusActive},
			{PoolID: "b", Status: StatusClosed},
			{PoolID: "c", Status: StatusActive},
		},
		Staking: []Stake{
			{YieldID: "y1", Status: StatusClosed},
			{YieldID: "y2", Status: StatusActive},
		},
	}

	pos := p.ActivePositions()
	if len(pos) != 2 || pos[0].PoolID != "a" || pos[1].PoolID != "c" {
		t.Fatalf("ActivePositions() = %+v", pos)
	}
	st := p.ActiveStaking()
	if len(st) != 1 || st[0].YieldID != "y2" {
		t.Fatalf("ActiveStaking() = %+v", st)
	}

	var nilPortfolio *Portfolio
	if nilPortfolio.ActivePositions() != nil || nilPortfolio.ActiveStaking() != nil {
		t.Fatal("nil portfolio should have no active entries")
	}
}
