package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider fetches raw country pricing from the carrier.
// Business logic stays provider-agnostic; only the response shape is Twilio's.
type Provider interface {
	Name() string
	FetchCountryPricing(ctx context.Context, cc string) (CountryPricing, error)
}

// TwilioProvider reads the Twilio Messaging pricing API.
type TwilioProvider struct {
	baseURL    string
	accountSID string
	authToken  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type TwilioOptions struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	// RPS bounds outbound pricing requests; burst equals ceil(RPS).
	RPS        float64
	HTTPClient *http.Client
}

func NewTwilioProvider(opts TwilioOptions) *TwilioProvider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if float64(burst) < rps {
		burst++
	}
	return &TwilioProvider{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) FetchCountryPricing(ctx context.Context, cc string) (CountryPricing, error) {
	if p.accountSID == "" || p.authToken == "" {
		return CountryPricing{}, fmt.Errorf("%w: twilio credentials not configured", ErrPricingUnavailable)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return CountryPricing{}, err
	}

	url := fmt.Sprintf("%s/Messaging/Countries/%s", p.baseURL, cc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CountryPricing{}, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return CountryPricing{}, fmt.Errorf("twilio pricing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CountryPricing{}, fmt.Errorf("twilio pricing read: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return CountryPricing{}, fmt.Errorf("%w: twilio has no pricing for %s", ErrPricingUnavailable, cc)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CountryPricing{}, fmt.Errorf("twilio pricing status %d", resp.StatusCode)
	}

	var out CountryPricing
	if err := json.Unmarshal(body, &out); err != nil {
		return CountryPricing{}, fmt.Errorf("twilio pricing decode: %w", err)
	}
	return out, nil
}
