// Package domain defines tenant configuration keys, their value types and the
// persisted record shape.
//
// The set of keys is closed. Each key has exactly one value type and a static
// classification: plain values are stored as JSON, encrypted values are sealed
// with envelope encryption and never stored in the clear.
package domain

import (
	"fmt"
	"slices"
)

// Key identifies a tenant configuration entry.
type Key string

// Configuration keys.
const (
	KeyBrandingIdentity Key = "branding.identity"
	KeyBrandingColors   Key = "branding.colors"
	KeyBrandingLogo     Key = "branding.logo"
	KeyTaxRules         Key = "tax.rules"
	KeyImageRules       Key = "image.rules"
	KeyMailSMTP         Key = "mail.smtp"
	KeyPaymentStripe    Key = "payment.stripe"
	KeyPaymentPayPal    Key = "payment.paypal"
	KeyMapsGoogle       Key = "maps.google"
	KeyCRMHubSpot       Key = "crm.hubspot"
	KeyCurrencyRates    Key = "currency.rates"
)

// Class is the storage classification of a key.
type Class int

const (
	// ClassPlain values are stored as JSON in value_plain.
	ClassPlain Class = iota
	// ClassEncrypted values are stored as secret_ciphertext plus wrapped_dek.
	ClassEncrypted
)

type keyInfo struct {
	class    Class
	branding bool
}

var keys = map[Key]keyInfo{
	KeyBrandingIdentity: {class: ClassPlain, branding: true},
	KeyBrandingColors:   {class: ClassPlain, branding: true},
	KeyBrandingLogo:     {class: ClassPlain, branding: true},
	KeyTaxRules:         {class: ClassPlain},
	KeyImageRules:       {class: ClassPlain},
	KeyMailSMTP:         {class: ClassEncrypted},
	KeyPaymentStripe:    {class: ClassEncrypted},
	KeyPaymentPayPal:    {class: ClassEncrypted},
	KeyMapsGoogle:       {class: ClassEncrypted},
	KeyCRMHubSpot:       {class: ClassEncrypted},
	KeyCurrencyRates:    {class: ClassEncrypted},
}

// ParseKey validates s against the known keys.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := keys[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownConfigKey, s)
	}
	return k, nil
}

// AllKeys returns every known key in lexical order.
func AllKeys() []Key {
	out := make([]Key, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// BrandingKeys returns the keys composed by a branding read.
func BrandingKeys() []Key {
	return []Key{KeyBrandingIdentity, KeyBrandingColors, KeyBrandingLogo}
}

// Valid reports whether k is a known key.
func (k Key) Valid() bool {
	_, ok := keys[k]
	return ok
}

// Class returns the storage classification of k.
func (k Key) Class() Class {
	return keys[k].class
}

// Encrypted reports whether values of k are sealed at rest.
func (k Key) Encrypted() bool {
	return k.Valid() && keys[k].class == ClassEncrypted
}

// IsBranding reports whether k is part of the branding group.
func (k Key) IsBranding() bool {
	return keys[k].branding
}

func (k Key) String() string {
	return string(k)
}
