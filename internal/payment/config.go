package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "CNY"

// GatewayConfig is passed explicitly into every remote operation.
type GatewayConfig struct {
	BaseURL       string
	StoreID       string
	APIKey        string
	WebhookSecret string
	// FixedFee is in minor units.
	FixedFee int64
	// PercentFee is a percentage between 0 and 100.
	PercentFee decimal.Decimal
	Currency   string
}

// Persisted config bag keys.
const (
	KeyURL        = "btcpay_url"
	KeyStoreID    = "btcpay_storeId"
	KeyAPIKey     = "btcpay_api_key"
	KeyWebhookKey = "btcpay_webhook_key"
	KeyCurrency   = "btcpay_currency"
	KeyFeeFixed   = "handling_fee_fixed"
	KeyFeePercent = "handling_fee_percent"
)

// Validate checks the fields every remote call needs.
func (c GatewayConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, KeyURL)
	}
	if strings.TrimSpace(c.StoreID) == "" {
		missing = append(missing, KeyStoreID)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, KeyAPIKey)
	}
	if len(missing) > 0 {
		return configError("missing " + strings.Join(missing, ", "))
	}
	return nil
}

func (c GatewayConfig) HasWebhookSecret() bool {
	return c.WebhookSecret != ""
}

func (c GatewayConfig) currency() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return c.Currency
}

func (c GatewayConfig) storeURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/v1/stores/" + pathEscape(c.StoreID)
}

// HandlingFee returns the fee in minor units charged on top of totalMinor.
func (c GatewayConfig) HandlingFee(totalMinor int64) int64 {
	fee := decimal.NewFromInt(c.FixedFee)
	if c.PercentFee.IsPositive() {
		pct := decimal.NewFromInt(totalMinor).Mul(c.PercentFee).Div(decimal.NewFromInt(100))
		fee = fee.Add(pct)
	}
	if fee.IsNegative() {
		return 0
	}
	return fee.Round(0).IntPart()
}

// FormatAmount renders minor units as a decimal string with two fraction digits.
func FormatAmount(minor int64) string {
	return decimal.NewFromInt(minor).Shift(-2).StringFixed(2)
}

// DecodeGatewayConfig reads the admin form's JSON bag. Values may be strings or numbers.
func DecodeGatewayConfig(raw []byte) (GatewayConfig, error) {
	var cfg GatewayConfig
	if len(raw) == 0 {
		return cfg, nil
	}

	var bag map[string]interface{}
	if err := json.Unmarshal(raw, &bag); err != nil {
		return cfg, configError(fmt.Sprintf("invalid config json: %v", err))
	}

	cfg.BaseURL = bagString(bag, KeyURL)
	cfg.StoreID = bagString(bag, KeyStoreID)
	cfg.APIKey = bagString(bag, KeyAPIKey)
	cfg.WebhookSecret = bagString(bag, KeyWebhookKey)
	cfg.Currency = strings.ToUpper(bagString(bag, KeyCurrency))

	if v := bagString(bag, KeyFeeFixed); v != "" {
		fixed, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, configError(fmt.Sprintf("invalid %s: %q", KeyFeeFixed, v))
		}
		cfg.FixedFee = fixed.Round(0).IntPart()
	}
	if v := bagString(bag, KeyFeePercent); v != "" {
		pct, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, configError(fmt.Sprintf("invalid %s: %q", KeyFeePercent, v))
		}
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return cfg, configError(fmt.Sprintf("%s must be between 0 and 100", KeyFeePercent))
		}
		cfg.PercentFee = pct
	}

	return cfg, nil
}

func bagString(bag map[string]interface{}, key string) string {
	switch v := bag[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return decimal.NewFromFloat(v).String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
