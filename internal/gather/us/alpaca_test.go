package us

import "testing"

func TestDailyBarGathererName(t *testing.T) {
	g := NewDailyBarGatherer("key", "secret", "https://data.alpaca.markets", "https://api.alpaca.markets",
		nil, []string{"AAPL"}, 4, 200, "2016-01-01")
	if got := g.Name(); got != "us-daily" {
		t.Errorf("DailyBarGatherer.Name() = %q, want %q", got, "us-daily")
	}
}

func TestDailyBarGathererDefaultsWorkers(t *testing.T) {
	g := NewDailyBarGatherer("key", "secret", "", "",
		nil, []string{"AAPL"}, 0, 200, "2016-01-01")
	if g.maxWorkers != 4 {
		t.Errorf("maxWorkers = %d, want default 4", g.maxWorkers)
	}
}
