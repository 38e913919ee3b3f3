package phonecountry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Tier is the risk/price class of a destination country.
type Tier string

const (
	TierDomestic Tier = "domestic"
	TierOne      Tier = "tier1"
	TierTwo      Tier = "tier2"
	TierBlocked  Tier = "blocked"
)

// Destination is a classified recipient.
type Destination struct {
	// CountryCode is ISO 3166-1 alpha-2, upper case.
	CountryCode string `json:"countryCode"`
	Tier        Tier   `json:"tier"`
}

// International reports whether the destination leaves the domestic market.
func (d Destination) International() bool { return d.Tier != TierDomestic }

// ErrInvalidPhone is the sentinel matched by errors.Is for any unparseable recipient.
var ErrInvalidPhone = errors.New("phonecountry: invalid phone number")

// InvalidPhoneError carries the offending input.
type InvalidPhoneError struct {
	Number string
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("phonecountry: invalid phone number %q", e.Number)
}

func (e *InvalidPhoneError) Is(target error) bool { return target == ErrInvalidPhone }

var domestic = map[string]struct{}{
	"US": {},
	"CA": {},
}

var tier1 = map[string]struct{}{
	"GB": {}, "IE": {}, "FR": {}, "DE": {}, "ES": {}, "IT": {}, "NL": {}, "BE": {}, "SE": {},
	"NO": {}, "DK": {}, "FI": {}, "AT": {}, "CH": {}, "PT": {}, "AU": {}, "NZ": {},
}

var tier2 = map[string]struct{}{
	"BR": {}, "MX": {}, "AR": {}, "CL": {}, "CO": {}, "PE": {}, "JP": {},
}

// Classify resolves an E.164 number to its country and tier.
// It fails closed: anything that is not a valid number for a known region is ErrInvalidPhone,
// and any region outside the allowlists is TierBlocked.
func Classify(e164 string) (Destination, error) {
	raw := strings.TrimSpace(e164)
	if !strings.HasPrefix(raw, "+") {
		return Destination{}, &InvalidPhoneError{Number: e164}
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return Destination{}, &InvalidPhoneError{Number: e164}
	}
	cc := strings.ToUpper(phonenumbers.GetRegionCodeForNumber(num))
	if cc == "" || cc == "ZZ" {
		return Destination{}, &InvalidPhoneError{Number: e164}
	}
	return Destination{CountryCode: cc, Tier: TierForCountry(cc)}, nil
}

// TierForCountry maps an ISO country code onto the static allowlists.
func TierForCountry(cc string) Tier {
	cc = strings.ToUpper(strings.TrimSpace(cc))
	if _, ok := domestic[cc]; ok {
		return TierDomestic
	}
	if _, ok := tier1[cc]; ok {
		return TierOne
	}
	if _, ok := tier2[cc]; ok {
		return TierTwo
	}
	return TierBlocked
}
