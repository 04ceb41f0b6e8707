package snapshotstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// tokenDataResponse is the JSON shape a token-data HTTP provider returns.
// Real primary/secondary providers differ in exact field names; each
// concrete provider owns its own response struct and maps it into
// types.TokenSnapshot — this one is the reference shape used by tests and
// by HTTPProvider.
type tokenDataResponse struct {
	LiquidityUSD    float64 `json:"liquidity_usd"`
	Volume24hUSD    float64 `json:"volume_24h_usd"`
	SpreadBps       float64 `json:"spread_bps"`
	Top10HoldersPct float64 `json:"top10_holders_pct"`
	SingleHolderPct float64 `json:"single_holder_pct"`
	Volatility30s   float64 `json:"volatility_30s"`
	PriceImpulse5m  float64 `json:"price_impulse_5m"`
	SmartMoneyShare float64 `json:"smart_money_share"`
	EventRisk       float64 `json:"event_risk"`
	Security        struct {
		IsHoneypot             bool `json:"is_honeypot"`
		MintAuthorityPresent   bool `json:"mint_authority_present"`
		FreezeAuthorityPresent bool `json:"freeze_authority_present"`
		SimSuccess             bool `json:"sim_success"`
		BuyTaxBps              int  `json:"buy_tax_bps"`
		SellTaxBps             int  `json:"sell_tax_bps"`
	} `json:"security"`
}

// HTTPProvider is a resty-backed token-data provider. It is the reference
// implementation for both the primary and secondary provider slots; only
// base URL and name differ between instances.
type HTTPProvider struct {
	name string
	http *resty.Client
}

// NewHTTPProvider creates a provider pointed at baseURL.
func NewHTTPProvider(name, baseURL string, timeout time.Duration) *HTTPProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond)

	return &HTTPProvider{name: name, http: client}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Fetch(ctx context.Context, mint string) (types.TokenSnapshot, error) {
	var body tokenDataResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetPathParam("mint", mint).
		SetResult(&body).
		Get("/tokens/{mint}")
	if err != nil {
		return types.TokenSnapshot{}, fmt.Errorf("%s: fetch %s: %w", p.name, mint, err)
	}
	if resp.StatusCode() >= 300 {
		return types.TokenSnapshot{}, fmt.Errorf("%s: fetch %s: status %d", p.name, mint, resp.StatusCode())
	}

	return types.TokenSnapshot{
		Schema:          types.SchemaVersion{Major: types.CurrentMajor, Minor: 0},
		Mint:            mint,
		LiquidityUSD:    body.LiquidityUSD,
		Volume24hUSD:    body.Volume24hUSD,
		SpreadBps:       body.SpreadBps,
		Top10HoldersPct: body.Top10HoldersPct,
		SingleHolderPct: body.SingleHolderPct,
		Volatility30s:   body.Volatility30s,
		PriceImpulse5m:  body.PriceImpulse5m,
		SmartMoneyShare: body.SmartMoneyShare,
		EventRisk:       body.EventRisk,
		Extra: types.SnapshotExtra{
			Source: p.name,
			Security: types.SecurityFlags{
				IsHoneypot:             body.Security.IsHoneypot,
				MintAuthorityPresent:   body.Security.MintAuthorityPresent,
				FreezeAuthorityPresent: body.Security.FreezeAuthorityPresent,
				SimSuccess:             body.Security.SimSuccess,
				BuyTaxBps:              body.Security.BuyTaxBps,
				SellTaxBps:             body.Security.SellTaxBps,
			},
		},
	}, nil
}
