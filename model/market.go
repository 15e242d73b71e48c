package model

import (
	"fmt"
	"strings"
)

type Market string

const (
	Nifty     Market = "nifty"
	BankNifty Market = "banknifty"
)

// Markets lists every supported index in the order they are reported.
var Markets = []Market{Nifty, BankNifty}

var marketSymbols = map[Market]string{
	Nifty:     "NIFTY",
	BankNifty: "BANKNIFTY",
}

var marketNames = map[Market]string{
	Nifty:     "Nifty",
	BankNifty: "BankNifty",
}

func ParseMarket(s string) (Market, error) {
	m := Market(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := marketSymbols[m]; !ok {
		return "", fmt.Errorf("unknown market '%s'", s)
	}
	return m, nil
}

func ParseMarkets(values []string) ([]Market, error) {
	res := make([]Market, 0, len(values))
	for _, v := range values {
		m, err := ParseMarket(v)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// Symbol returns the index symbol used by the exchange API.
func (m Market) Symbol() string {
	return marketSymbols[m]
}

// DisplayName returns the key used for the market in aggregated responses.
func (m Market) DisplayName() string {
	return marketNames[m]
}

func (m Market) String() string {
	return string(m)
}
