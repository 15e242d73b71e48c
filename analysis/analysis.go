package analysis

import (
	"math"
	"time"

	"github.com/nsepulse/pulse/model"
)

// OdinPercentage returns the change of open interest relative to the open interest, in percent.
func OdinPercentage(changeInOI float64, openInterest float64) float64 {
	if openInterest > 0 {
		return round2(changeInOI / openInterest * 100)
	}
	return 0
}

// FilterCallPut splits the option chain rows into call and put strike data.
// When rangePoints is nil every strike is kept, otherwise only strikes
// within underlying +/- rangePoints.
func FilterCallPut(rows []model.ChainRow, underlying float64, rangePoints *float64) (calls []model.StrikeData, puts []model.StrikeData) {
	minStrike, maxStrike := math.Inf(-1), math.Inf(1)
	if rangePoints != nil {
		minStrike, maxStrike = underlying-*rangePoints, underlying+*rangePoints
	}
	calls, puts = make([]model.StrikeData, 0), make([]model.StrikeData, 0)
	for _, row := range rows {
		strike := strikeOf(row)
		if strike < minStrike || strike > maxStrike {
			continue
		}
		if row.CE != nil {
			calls = append(calls, toStrikeData(strike, row.CE))
		}
		if row.PE != nil {
			puts = append(puts, toStrikeData(strike, row.PE))
		}
	}
	return
}

func strikeOf(row model.ChainRow) float64 {
	if row.CE != nil && row.CE.StrikePrice != nil {
		return *row.CE.StrikePrice
	}
	if row.PE != nil && row.PE.StrikePrice != nil {
		return *row.PE.StrikePrice
	}
	return 0
}

func toStrikeData(strike float64, leg *model.OptionLeg) model.StrikeData {
	return model.StrikeData{
		StrikePrice:    strike,
		LastPrice:      leg.LastPrice,
		OpenInterest:   leg.OpenInterest,
		ChangeInOI:     leg.ChangeInOpenInterest,
		Volume:         leg.TotalTradedVolume,
		IV:             leg.ImpliedVolatility,
		BidPrice:       leg.BidPrice,
		AskPrice:       leg.AskPrice,
		OdinPercentage: OdinPercentage(leg.ChangeInOpenInterest, leg.OpenInterest),
	}
}

// Intraday computes the open interest based signals of a snapshot.
// The Time field is left empty, callers stamp it with Bucket.
func Intraday(calls []model.StrikeData, puts []model.StrikeData, price float64) model.IntradayEntry {
	if len(calls) == 0 || len(puts) == 0 {
		return model.IntradayEntry{
			OptionSignal: model.Neutral,
			VWAPSignal:   model.Neutral,
			FinalSignal:  model.Neutral,
		}
	}

	callOI := totalOI(calls)
	putOI := totalOI(puts)

	var pcr float64
	if callOI > 0 {
		pcr = round2(putOI / callOI)
	}

	optionSignal := model.Sell
	if callOI > putOI {
		optionSignal = model.Buy
	}

	var num, den float64
	for _, side := range [][]model.StrikeData{calls, puts} {
		for _, s := range side {
			if s.OpenInterest == 0 {
				continue
			}
			num += s.LastPrice * s.OpenInterest
			den += s.OpenInterest
		}
	}
	var vwap float64
	if den > 0 {
		vwap = round2(num / den)
	}

	vwapSignal := model.Sell
	if price > vwap {
		vwapSignal = model.Buy
	}

	return model.IntradayEntry{
		Call:         callOI,
		Put:          putOI,
		Difference:   callOI - putOI,
		PCR:          pcr,
		OptionSignal: optionSignal,
		VWAP:         vwap,
		Price:        price,
		VWAPSignal:   vwapSignal,
		FinalSignal:  combine(optionSignal, vwapSignal),
	}
}

// IntradayOf computes the entry of a snapshot stamped with the bucket of at.
func IntradayOf(snapshot *model.Snapshot, at time.Time, intervalMinutes int) model.IntradayEntry {
	entry := Intraday(snapshot.CallData, snapshot.PutData, snapshot.UnderlyingValue)
	entry.Time = Bucket(at, intervalMinutes)
	return entry
}

// Bucket floors t to the interval boundary in its own location and formats it as HH:MM.
func Bucket(t time.Time, intervalMinutes int) string {
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}
	m := t.Minute() - t.Minute()%intervalMinutes
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, t.Location()).Format("15:04")
}

func combine(option model.Signal, vwap model.Signal) model.Signal {
	switch {
	case option == model.Buy && vwap == model.Buy:
		return model.Buy
	case option == model.Sell && vwap == model.Sell:
		return model.Sell
	default:
		return model.Neutral
	}
}

func totalOI(data []model.StrikeData) float64 {
	var sum float64
	for _, d := range data {
		sum += d.OpenInterest
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
