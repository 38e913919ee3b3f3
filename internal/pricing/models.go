package pricing

import (
	"bytes"
	"strconv"
	"strings"
)

// CountryPricing is the subset of the Twilio Messaging pricing resource we read.
// GET /v1/Messaging/Countries/{IsoCountry}
type CountryPricing struct {
	Country           string             `json:"country"`
	ISOCountry        string             `json:"iso_country"`
	PriceUnit         string             `json:"price_unit"`
	OutboundSMSPrices []OutboundSMSPrice `json:"outbound_sms_prices"`
}

// OutboundSMSPrice is one carrier row. Prices holds per-number-type segment prices.
type OutboundSMSPrice struct {
	Carrier      string         `json:"carrier"`
	MCC          string         `json:"mcc"`
	MNC          string         `json:"mnc"`
	Prices       []SegmentPrice `json:"prices"`
	CurrentPrice PriceValue     `json:"current_price"`
}

type SegmentPrice struct {
	NumberType   string     `json:"number_type"`
	BasePrice    PriceValue `json:"base_price"`
	CurrentPrice PriceValue `json:"current_price"`
}

// PriceValue keeps the provider's literal, which may arrive as a JSON string or number.
type PriceValue string

func (p *PriceValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if s, err := strconv.Unquote(string(b)); err == nil {
		*p = PriceValue(s)
		return nil
	}
	*p = PriceValue(b)
	return nil
}

// Present reports whether the provider sent any value at all.
func (p PriceValue) Present() bool { return strings.TrimSpace(string(p)) != "" }

// Float parses the literal.
func (p PriceValue) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(p)), 64)
}
