package model

import "time"

type StrikeData struct {
	StrikePrice    float64 `json:"strikePrice"`
	LastPrice      float64 `json:"lastPrice"`
	OpenInterest   float64 `json:"openInterest"`
	ChangeInOI     float64 `json:"changeInOI"`
	Volume         float64 `json:"volume"`
	IV             float64 `json:"iv"`
	BidPrice       float64 `json:"bidPrice"`
	AskPrice       float64 `json:"askPrice"`
	OdinPercentage float64 `json:"odinPercentage"`
}

// Snapshot is the filtered view of one option chain fetch.
type Snapshot struct {
	UnderlyingValue float64      `json:"underlyingValue"`
	CallData        []StrikeData `json:"callData"`
	PutData         []StrikeData `json:"putData"`
	FetchedAt       time.Time    `json:"fetchedAt,omitzero"`
}

type Signal string

const (
	Buy     Signal = "Buy"
	Sell    Signal = "Sell"
	Neutral Signal = "Neutral"
)

type IntradayEntry struct {
	Time         string  `json:"Time"`
	Call         float64 `json:"Call"`
	Put          float64 `json:"Put"`
	Difference   float64 `json:"Difference"`
	PCR          float64 `json:"PCR"`
	OptionSignal Signal  `json:"Option Signal"`
	VWAP         float64 `json:"VWAP"`
	Price        float64 `json:"Price"`
	VWAPSignal   Signal  `json:"VWAP Signal"`
	FinalSignal  Signal  `json:"Final Signal"`
}

// Update is published whenever a market gets a new snapshot.
type Update struct {
	Market   Market
	Snapshot *Snapshot
	Entry    *IntradayEntry
}
