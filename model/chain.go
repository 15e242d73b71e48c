package model

// OptionChain is the option chain document served by the exchange.
type OptionChain struct {
	Records *ChainRecords `json:"records"`
}

type ChainRecords struct {
	Timestamp       string     `json:"timestamp"`
	UnderlyingValue *float64   `json:"underlyingValue"`
	ExpiryDates     []string   `json:"expiryDates"`
	Data            []ChainRow `json:"data"`
}

type ChainRow struct {
	StrikePrice float64    `json:"strikePrice"`
	ExpiryDate  string     `json:"expiryDate"`
	CE          *OptionLeg `json:"CE"`
	PE          *OptionLeg `json:"PE"`
}

type OptionLeg struct {
	StrikePrice          *float64 `json:"strikePrice"`
	LastPrice            float64  `json:"lastPrice"`
	OpenInterest         float64  `json:"openInterest"`
	ChangeInOpenInterest float64  `json:"changeinOpenInterest"`
	TotalTradedVolume    float64  `json:"totalTradedVolume"`
	ImpliedVolatility    float64  `json:"impliedVolatility"`
	BidPrice             float64  `json:"bidprice"`
	AskPrice             float64  `json:"askPrice"`
}
