package backtest

import (
	"math"
	"testing"
	"time"

	"tycho/internal/config"
	"tycho/internal/domain"
	"tycho/internal/portfolio"
	"tycho/internal/pricedata"
)

var execDate = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func dayPrices(closes map[string]float64) pricedata.DayPrices {
	bars := make(map[string]domain.Bar, len(closes))
	for sym, c := range closes {
		bars[sym] = domain.Bar{Symbol: sym, Date: execDate, Open: c, High: c, Low: c, Close: c}
	}
	return pricedata.DayPrices{Date: execDate, Bars: bars}
}

func TestExecuteBuyFillsAndDebitsCash(t *testing.T) {
	ex := NewExecutor(ExecConfig{})
	pf := portfolio.New(10_000, 0)

	fills, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 100}},
		pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rejections) != 0 {
		t.Fatalf("rejections = %v, want none", rejections)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	f := fills[0]
	if f.Quantity != 100 || f.Price != 10 || f.CashDelta != -1_000 {
		t.Errorf("fill = %+v, want qty 100 price 10 cashDelta -1000", f)
	}
	if pf.Cash() != 9_000 {
		t.Errorf("cash = %v, want 9000", pf.Cash())
	}
}

func TestExecuteBuyInsufficientCashRejects(t *testing.T) {
	ex := NewExecutor(ExecConfig{OnInsufficientCash: config.CashPolicyReject})
	pf := portfolio.New(500, 0)

	fills, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 100}},
		pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("fills = %v, want none", fills)
	}
	if len(rejections) != 1 || rejections[0].Reason != domain.RejectInsufficientCash {
		t.Fatalf("rejections = %+v, want one insufficient_cash", rejections)
	}
	// Rejection safety: no state change.
	if pf.Cash() != 500 {
		t.Errorf("cash = %v after rejection, want 500", pf.Cash())
	}
	if _, ok := pf.Position("AAA"); ok {
		t.Error("position created by rejected intent")
	}
}

func TestExecuteBuyInsufficientCashClips(t *testing.T) {
	ex := NewExecutor(ExecConfig{OnInsufficientCash: config.CashPolicyClip})
	pf := portfolio.New(550, 0)

	fills, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 100}},
		pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rejections) != 0 {
		t.Fatalf("rejections = %v, want none", rejections)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	// 550 cash at price 10 affords 55 whole units.
	if fills[0].Quantity != 55 || !fills[0].Clipped {
		t.Errorf("fill = %+v, want clipped qty 55", fills[0])
	}
	if pf.Cash() != 0 {
		t.Errorf("cash = %v, want 0", pf.Cash())
	}
}

func TestExecuteClipWithNoAffordableUnitRejects(t *testing.T) {
	ex := NewExecutor(ExecConfig{OnInsufficientCash: config.CashPolicyClip})
	pf := portfolio.New(5, 0)

	fills, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 10}},
		pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("fills = %v, want none", fills)
	}
	if len(rejections) != 1 || rejections[0].Reason != domain.RejectInsufficientCash {
		t.Fatalf("rejections = %+v, want one insufficient_cash", rejections)
	}
}

func TestExecuteSellBeyondHeldRejectsNeverShorts(t *testing.T) {
	ex := NewExecutor(ExecConfig{})
	pf := portfolio.New(10_000, 0)
	prices := dayPrices(map[string]float64{"AAA": 10})

	if _, _, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 10}}, pf, prices); err != nil {
		t.Fatalf("setup buy: %v", err)
	}

	fills, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionSell, Quantity: 20}}, pf, prices)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("fills = %v, want none", fills)
	}
	if len(rejections) != 1 || rejections[0].Reason != domain.RejectInsufficientShares {
		t.Fatalf("rejections = %+v, want one insufficient_shares", rejections)
	}
	pos, _ := pf.Position("AAA")
	if pos.Quantity != 10 {
		t.Errorf("position quantity = %v after rejected oversell, want 10", pos.Quantity)
	}
}

func TestExecuteShortDisabledByDefault(t *testing.T) {
	ex := NewExecutor(ExecConfig{})
	pf := portfolio.New(10_000, 0)

	_, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionShort, Quantity: 10}},
		pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rejections) != 1 || rejections[0].Reason != domain.RejectShortingDisabled {
		t.Fatalf("rejections = %+v, want one shorting_disabled", rejections)
	}
}

func TestExecuteShortAndCoverClip(t *testing.T) {
	ex := NewExecutor(ExecConfig{AllowShort: true})
	pf := portfolio.New(10_000, 0)
	prices := dayPrices(map[string]float64{"AAA": 20})

	fills, _, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionShort, Quantity: 50}}, pf, prices)
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	if len(fills) != 1 || fills[0].CashDelta != 1_000 {
		t.Fatalf("short fill = %+v, want cashDelta 1000", fills)
	}

	// Covering more than the open short clips to the short size.
	fills, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionCover, Quantity: 80}}, pf, prices)
	if err != nil {
		t.Fatalf("cover: %v", err)
	}
	if len(rejections) != 0 {
		t.Fatalf("rejections = %v, want none", rejections)
	}
	if len(fills) != 1 || fills[0].Quantity != 50 || !fills[0].Clipped {
		t.Fatalf("cover fill = %+v, want clipped qty 50", fills)
	}
	if _, ok := pf.Position("AAA"); ok {
		t.Error("position still open after full cover")
	}
}

func TestExecuteNoPriceRejection(t *testing.T) {
	ex := NewExecutor(ExecConfig{})
	pf := portfolio.New(10_000, 0)

	_, rejections, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "ZZZ", Action: domain.ActionBuy, Quantity: 10}},
		pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rejections) != 1 || rejections[0].Reason != domain.RejectNoPrice {
		t.Fatalf("rejections = %+v, want one no_price_for_ticker", rejections)
	}
}

func TestExecutePreservesIntentOrderAndContinuesAfterRejection(t *testing.T) {
	ex := NewExecutor(ExecConfig{})
	pf := portfolio.New(1_500, 0)
	prices := dayPrices(map[string]float64{"AAA": 10, "BBB": 5})

	fills, rejections, err := ex.Execute(execDate, []domain.Intent{
		{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 100},  // 1000, fills
		{Symbol: "BBB", Action: domain.ActionBuy, Quantity: 1000}, // 5000, rejected
		{Symbol: "BBB", Action: domain.ActionBuy, Quantity: 100},  // 500, fills
	}, pf, prices)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if fills[0].Symbol != "AAA" || fills[1].Symbol != "BBB" {
		t.Errorf("fill order = %s, %s, want AAA, BBB", fills[0].Symbol, fills[1].Symbol)
	}
	if len(rejections) != 1 || rejections[0].Reason != domain.RejectInsufficientCash {
		t.Fatalf("rejections = %+v, want one insufficient_cash", rejections)
	}
	if pf.Cash() != 0 {
		t.Errorf("cash = %v, want 0", pf.Cash())
	}
}

func TestExecuteHoldAndZeroQuantityAreNoOps(t *testing.T) {
	ex := NewExecutor(ExecConfig{})
	pf := portfolio.New(10_000, 0)

	fills, rejections, err := ex.Execute(execDate, []domain.Intent{
		{Symbol: "AAA", Action: domain.ActionHold, Quantity: 100},
		{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 0},
	}, pf, dayPrices(map[string]float64{"AAA": 10}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(fills) != 0 || len(rejections) != 0 {
		t.Errorf("fills = %v, rejections = %v, want none", fills, rejections)
	}
}

func TestExecuteAppliesTransactionCosts(t *testing.T) {
	ex := NewExecutor(ExecConfig{CostBps: 10}) // 10 bps = 0.1%
	pf := portfolio.New(10_000, 0)
	prices := dayPrices(map[string]float64{"AAA": 10})

	fills, _, err := ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionBuy, Quantity: 100}}, pf, prices)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	wantDelta := -(1_000 + 1.0) // notional + 10 bps
	if math.Abs(fills[0].CashDelta-wantDelta) > 1e-9 {
		t.Errorf("buy cashDelta = %v, want %v", fills[0].CashDelta, wantDelta)
	}

	fills, _, err = ex.Execute(execDate,
		[]domain.Intent{{Symbol: "AAA", Action: domain.ActionSell, Quantity: 100}}, pf, prices)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	wantDelta = 1_000 - 1.0 // proceeds - 10 bps
	if math.Abs(fills[0].CashDelta-wantDelta) > 1e-9 {
		t.Errorf("sell cashDelta = %v, want %v", fills[0].CashDelta, wantDelta)
	}
}
