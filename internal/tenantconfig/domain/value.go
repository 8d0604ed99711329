package domain

import (
	"encoding/json"
	"fmt"

	validation "github.com/jellydator/validation"

	appValidation "github.com/allisson/tenantconfig/internal/validation"
)

// Value is the decoded form of a configuration entry. Every key has exactly one
// implementation.
type Value interface {
	ConfigKey() Key
	Validate() error
}

// BrandingIdentity holds the tenant's public identity.
type BrandingIdentity struct {
	CompanyName  string `json:"company_name"`
	LegalName    string `json:"legal_name,omitempty"`
	SupportEmail string `json:"support_email,omitempty"`
	Website      string `json:"website,omitempty"`
}

func (BrandingIdentity) ConfigKey() Key { return KeyBrandingIdentity }

func (v BrandingIdentity) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.CompanyName, validation.Required, appValidation.NotBlank, validation.Length(1, 255)),
		validation.Field(&v.LegalName, validation.Length(0, 255)),
		validation.Field(&v.SupportEmail, appValidation.Email),
		validation.Field(&v.Website, appValidation.HTTPURL),
	)
}

// BrandingColors holds the tenant palette as hex colors.
type BrandingColors struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
	Accent    string `json:"accent,omitempty"`
}

func (BrandingColors) ConfigKey() Key { return KeyBrandingColors }

func (v BrandingColors) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Primary, validation.Required, appValidation.HexColor),
		validation.Field(&v.Secondary, appValidation.HexColor),
		validation.Field(&v.Accent, appValidation.HexColor),
	)
}

// BrandingLogo holds asset URLs.
type BrandingLogo struct {
	LogoURL    string `json:"logo_url"`
	FaviconURL string `json:"favicon_url,omitempty"`
}

func (BrandingLogo) ConfigKey() Key { return KeyBrandingLogo }

func (v BrandingLogo) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.LogoURL, validation.Required, appValidation.HTTPURL),
		validation.Field(&v.FaviconURL, appValidation.HTTPURL),
	)
}

// TaxRules holds the default and per-region tax rates, as fractions.
type TaxRules struct {
	DefaultRate      float64            `json:"default_rate"`
	PricesIncludeTax bool               `json:"prices_include_tax"`
	RegionalRates    map[string]float64 `json:"regional_rates,omitempty"`
}

func (TaxRules) ConfigKey() Key { return KeyTaxRules }

func (v TaxRules) Validate() error {
	if err := validation.Validate(v.DefaultRate, validation.Min(0.0), validation.Max(1.0)); err != nil {
		return validation.Errors{"default_rate": err}
	}
	for region, rate := range v.RegionalRates {
		if region == "" {
			return validation.Errors{"regional_rates": validation.NewError("validation_region", "region must not be empty")}
		}
		if err := validation.Validate(rate, validation.Min(0.0), validation.Max(1.0)); err != nil {
			return validation.Errors{"regional_rates": fmt.Errorf("%s: %w", region, err)}
		}
	}
	return nil
}

// ImageRules limits uploaded images.
type ImageRules struct {
	MaxWidth       int      `json:"max_width"`
	MaxHeight      int      `json:"max_height"`
	MaxBytes       int64    `json:"max_bytes"`
	AllowedFormats []string `json:"allowed_formats,omitempty"`
}

func (ImageRules) ConfigKey() Key { return KeyImageRules }

func (v ImageRules) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.MaxWidth, validation.Required, validation.Min(1), validation.Max(20000)),
		validation.Field(&v.MaxHeight, validation.Required, validation.Min(1), validation.Max(20000)),
		validation.Field(&v.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&v.AllowedFormats, validation.Each(validation.In("jpeg", "png", "webp", "gif", "svg"))),
	)
}

// SMTPConfig holds mail relay credentials.
type SMTPConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name,omitempty"`
	UseTLS      bool   `json:"use_tls"`
}

func (SMTPConfig) ConfigKey() Key { return KeyMailSMTP }

func (v SMTPConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Host, validation.Required, appValidation.NotBlank),
		validation.Field(&v.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&v.FromAddress, validation.Required, appValidation.Email),
	)
}

// StripeConfig holds Stripe API credentials.
type StripeConfig struct {
	PublishableKey string `json:"publishable_key"`
	SecretKey      string `json:"secret_key"`
	WebhookSecret  string `json:"webhook_secret,omitempty"`
}

func (StripeConfig) ConfigKey() Key { return KeyPaymentStripe }

func (v StripeConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.PublishableKey, validation.Required, appValidation.NotBlank),
		validation.Field(&v.SecretKey, validation.Required, appValidation.NotBlank),
	)
}

// PayPalConfig holds PayPal REST credentials.
type PayPalConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Mode         string `json:"mode"`
}

func (PayPalConfig) ConfigKey() Key { return KeyPaymentPayPal }

func (v PayPalConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.ClientID, validation.Required, appValidation.NotBlank),
		validation.Field(&v.ClientSecret, validation.Required, appValidation.NotBlank),
		validation.Field(&v.Mode, validation.Required, validation.In("sandbox", "live")),
	)
}

// GoogleMapsConfig holds the Maps API key.
type GoogleMapsConfig struct {
	APIKey string `json:"api_key"`
}

func (GoogleMapsConfig) ConfigKey() Key { return KeyMapsGoogle }

func (v GoogleMapsConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.APIKey, validation.Required, appValidation.NotBlank),
	)
}

// HubSpotConfig holds a HubSpot private app token.
type HubSpotConfig struct {
	AccessToken string `json:"access_token"`
	PortalID    string `json:"portal_id,omitempty"`
}

func (HubSpotConfig) ConfigKey() Key { return KeyCRMHubSpot }

func (v HubSpotConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.AccessToken, validation.Required, appValidation.NotBlank),
	)
}

// CurrencyRatesConfig holds exchange rate provider credentials.
type CurrencyRatesConfig struct {
	Provider     string `json:"provider"`
	APIKey       string `json:"api_key"`
	BaseCurrency string `json:"base_currency"`
}

func (CurrencyRatesConfig) ConfigKey() Key { return KeyCurrencyRates }

func (v CurrencyRatesConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Provider, validation.Required, appValidation.NotBlank),
		validation.Field(&v.APIKey, validation.Required, appValidation.NotBlank),
		validation.Field(&v.BaseCurrency, validation.Required, appValidation.CurrencyCode),
	)
}

// MaskedSecret stands in for an encrypted value a caller did not ask to decrypt.
type MaskedSecret struct {
	Key       Key  `json:"-"`
	SecretSet bool `json:"secret_set"`
}

func (m MaskedSecret) ConfigKey() Key { return m.Key }

func (MaskedSecret) Validate() error { return nil }

// NewValue returns a pointer to the zero value type for k.
func NewValue(k Key) (Value, error) {
	switch k {
	case KeyBrandingIdentity:
		return &BrandingIdentity{}, nil
	case KeyBrandingColors:
		return &BrandingColors{}, nil
	case KeyBrandingLogo:
		return &BrandingLogo{}, nil
	case KeyTaxRules:
		return &TaxRules{}, nil
	case KeyImageRules:
		return &ImageRules{}, nil
	case KeyMailSMTP:
		return &SMTPConfig{}, nil
	case KeyPaymentStripe:
		return &StripeConfig{}, nil
	case KeyPaymentPayPal:
		return &PayPalConfig{}, nil
	case KeyMapsGoogle:
		return &GoogleMapsConfig{}, nil
	case KeyCRMHubSpot:
		return &HubSpotConfig{}, nil
	case KeyCurrencyRates:
		return &CurrencyRatesConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConfigKey, k)
	}
}

// DecodeValue decodes raw JSON into the value type of k.
func DecodeValue(k Key, raw []byte) (Value, error) {
	v, err := NewValue(k)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfigValue, k, err)
	}
	return v, nil
}

// EncodeValue validates v and encodes it as JSON.
func EncodeValue(v Value) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, appValidation.WrapValidationError(err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfigValue, v.ConfigKey(), err)
	}
	return raw, nil
}
