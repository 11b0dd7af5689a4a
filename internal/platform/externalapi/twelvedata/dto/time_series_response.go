// Package dto defines data transfer objects for the Twelve Data API responses.
package dto

import "encoding/json"

// TimeSeriesResponse represents the JSON response from the Twelve Data time_series endpoint.
// Values are kept raw so that each row can be validated on its own.
type TimeSeriesResponse struct {
	Status  string            `json:"status"`
	Code    int               `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Meta    TimeSeriesMeta    `json:"meta"`
	Values  []json.RawMessage `json:"values"`
}

// TimeSeriesMeta is the "meta" object of a successful response.
type TimeSeriesMeta struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Type     string `json:"type"`
}

// TimeSeriesValue is one row of "values". Every price is a decimal string;
// volume is absent for most FX pairs.
type TimeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume,omitempty"`
}
