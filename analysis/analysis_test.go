package analysis

import (
	"testing"
	"time"

	"github.com/nsepulse/pulse/model"
	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func TestOdinPercentage(t *testing.T) {
	assert.Equal(t, 33.33, OdinPercentage(100, 300))
	assert.Equal(t, -50.0, OdinPercentage(-50, 100))
	assert.Equal(t, 0.0, OdinPercentage(100, 0))
	assert.Equal(t, 0.0, OdinPercentage(100, -5))
}

func TestFilterCallPut(t *testing.T) {
	rows := []model.ChainRow{
		{CE: &model.OptionLeg{StrikePrice: ptr(19800), LastPrice: 210, OpenInterest: 1000, ChangeInOpenInterest: 100},
			PE: &model.OptionLeg{StrikePrice: ptr(19800), LastPrice: 15, OpenInterest: 3000, ChangeInOpenInterest: 300}},
		{CE: &model.OptionLeg{StrikePrice: ptr(20000), LastPrice: 90, OpenInterest: 2000, TotalTradedVolume: 12, ImpliedVolatility: 11.5, BidPrice: 89, AskPrice: 91}},
		{PE: &model.OptionLeg{StrikePrice: ptr(20200), LastPrice: 180, OpenInterest: 500}},
	}

	t.Run("no range", func(t *testing.T) {
		calls, puts := FilterCallPut(rows, 20000, nil)
		assert.Len(t, calls, 2)
		assert.Len(t, puts, 2)
		assert.Equal(t, model.StrikeData{StrikePrice: 19800, LastPrice: 210, OpenInterest: 1000, ChangeInOI: 100, OdinPercentage: 10}, calls[0])
		assert.Equal(t, model.StrikeData{StrikePrice: 20000, LastPrice: 90, OpenInterest: 2000, Volume: 12, IV: 11.5, BidPrice: 89, AskPrice: 91}, calls[1])
		assert.Equal(t, 19800.0, puts[0].StrikePrice)
		assert.Equal(t, 20200.0, puts[1].StrikePrice)
	})
	t.Run("range", func(t *testing.T) {
		calls, puts := FilterCallPut(rows, 20000, ptr(100))
		assert.Len(t, calls, 1)
		assert.Equal(t, 20000.0, calls[0].StrikePrice)
		assert.Empty(t, puts)
		assert.NotNil(t, puts)
	})
	t.Run("range inclusive", func(t *testing.T) {
		calls, puts := FilterCallPut(rows, 20000, ptr(200))
		assert.Len(t, calls, 2)
		assert.Len(t, puts, 2)
	})
	t.Run("strike from put leg when call has none", func(t *testing.T) {
		calls, puts := FilterCallPut([]model.ChainRow{
			{CE: &model.OptionLeg{LastPrice: 1}, PE: &model.OptionLeg{StrikePrice: ptr(500), LastPrice: 2}},
		}, 500, nil)
		assert.Equal(t, 500.0, calls[0].StrikePrice)
		assert.Equal(t, 500.0, puts[0].StrikePrice)
	})
	t.Run("missing strike defaults to zero", func(t *testing.T) {
		calls, _ := FilterCallPut([]model.ChainRow{{CE: &model.OptionLeg{LastPrice: 1}}}, 500, nil)
		assert.Equal(t, 0.0, calls[0].StrikePrice)

		calls, _ = FilterCallPut([]model.ChainRow{{CE: &model.OptionLeg{LastPrice: 1}}}, 500, ptr(10))
		assert.Empty(t, calls)
	})
	t.Run("empty", func(t *testing.T) {
		calls, puts := FilterCallPut(nil, 500, nil)
		assert.NotNil(t, calls)
		assert.NotNil(t, puts)
	})
}

func TestIntraday(t *testing.T) {
	t.Run("empty side", func(t *testing.T) {
		e := Intraday([]model.StrikeData{{OpenInterest: 10}}, nil, 100)
		assert.Equal(t, model.IntradayEntry{OptionSignal: model.Neutral, VWAPSignal: model.Neutral, FinalSignal: model.Neutral}, e)

		e = Intraday(nil, []model.StrikeData{{OpenInterest: 10}}, 100)
		assert.Equal(t, model.Neutral, e.FinalSignal)
		assert.Equal(t, 0.0, e.Price)
	})
	t.Run("buy", func(t *testing.T) {
		calls := []model.StrikeData{{LastPrice: 10, OpenInterest: 300}, {LastPrice: 50, OpenInterest: 0}}
		puts := []model.StrikeData{{LastPrice: 20, OpenInterest: 100}}
		e := Intraday(calls, puts, 100)
		assert.Equal(t, 300.0, e.Call)
		assert.Equal(t, 100.0, e.Put)
		assert.Equal(t, 200.0, e.Difference)
		assert.Equal(t, 0.33, e.PCR)
		assert.Equal(t, model.Buy, e.OptionSignal)
		assert.Equal(t, 12.5, e.VWAP)
		assert.Equal(t, 100.0, e.Price)
		assert.Equal(t, model.Buy, e.VWAPSignal)
		assert.Equal(t, model.Buy, e.FinalSignal)
	})
	t.Run("sell", func(t *testing.T) {
		calls := []model.StrikeData{{LastPrice: 10, OpenInterest: 100}}
		puts := []model.StrikeData{{LastPrice: 30, OpenInterest: 300}}
		e := Intraday(calls, puts, 20)
		assert.Equal(t, 3.0, e.PCR)
		assert.Equal(t, model.Sell, e.OptionSignal)
		assert.Equal(t, 25.0, e.VWAP)
		assert.Equal(t, model.Sell, e.VWAPSignal)
		assert.Equal(t, model.Sell, e.FinalSignal)
		assert.Equal(t, -200.0, e.Difference)
	})
	t.Run("neutral", func(t *testing.T) {
		calls := []model.StrikeData{{LastPrice: 10, OpenInterest: 100}}
		puts := []model.StrikeData{{LastPrice: 30, OpenInterest: 300}}
		e := Intraday(calls, puts, 30)
		assert.Equal(t, model.Sell, e.OptionSignal)
		assert.Equal(t, model.Buy, e.VWAPSignal)
		assert.Equal(t, model.Neutral, e.FinalSignal)
	})
	t.Run("equal open interest sells", func(t *testing.T) {
		e := Intraday([]model.StrikeData{{LastPrice: 1, OpenInterest: 5}}, []model.StrikeData{{LastPrice: 1, OpenInterest: 5}}, 1)
		assert.Equal(t, model.Sell, e.OptionSignal)
		assert.Equal(t, model.Sell, e.VWAPSignal)
		assert.Equal(t, 1.0, e.PCR)
	})
	t.Run("zero open interest", func(t *testing.T) {
		e := Intraday([]model.StrikeData{{LastPrice: 1}}, []model.StrikeData{{LastPrice: 1}}, 10)
		assert.Equal(t, 0.0, e.PCR)
		assert.Equal(t, 0.0, e.VWAP)
		assert.Equal(t, model.Sell, e.OptionSignal)
		assert.Equal(t, model.Buy, e.VWAPSignal)
		assert.Equal(t, model.Neutral, e.FinalSignal)
	})
}

func TestBucket(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	assert.Equal(t, "09:15", Bucket(time.Date(2024, 5, 2, 9, 29, 59, 0, loc), 15))
	assert.Equal(t, "09:30", Bucket(time.Date(2024, 5, 2, 9, 30, 0, 0, loc), 15))
	assert.Equal(t, "10:00", Bucket(time.Date(2024, 5, 2, 10, 14, 0, 0, loc), 15))
	assert.Equal(t, "10:10", Bucket(time.Date(2024, 5, 2, 10, 14, 0, 0, loc), 5))
	assert.Equal(t, "23:00", Bucket(time.Date(2024, 5, 2, 23, 59, 0, 0, loc), 60))
	assert.Equal(t, "10:14", Bucket(time.Date(2024, 5, 2, 10, 14, 0, 0, loc), 0))
}

func TestIntradayOf(t *testing.T) {
	snap := &model.Snapshot{
		UnderlyingValue: 100,
		CallData:        []model.StrikeData{{LastPrice: 10, OpenInterest: 300}},
		PutData:         []model.StrikeData{{LastPrice: 20, OpenInterest: 100}},
	}
	e := IntradayOf(snap, time.Date(2024, 5, 2, 11, 7, 0, 0, time.UTC), 15)
	assert.Equal(t, "11:00", e.Time)
	assert.Equal(t, model.Buy, e.FinalSignal)
}
