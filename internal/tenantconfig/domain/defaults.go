package domain

// PlatformDefaults are the environment-provided fallbacks for plain keys.
// They never touch the database.
type PlatformDefaults struct {
	Identity BrandingIdentity
	Colors   BrandingColors
	Logo     BrandingLogo
	Tax      TaxRules
	Image    ImageRules
}

// Branding returns the default branding.
func (d PlatformDefaults) Branding() BrandingConfig {
	return BrandingConfig{Identity: d.Identity, Colors: d.Colors, Logo: d.Logo}
}

// Value returns the default for a plain key. Encrypted keys have no default.
func (d PlatformDefaults) Value(k Key) (Value, bool) {
	switch k {
	case KeyBrandingIdentity:
		v := d.Identity
		return &v, true
	case KeyBrandingColors:
		v := d.Colors
		return &v, true
	case KeyBrandingLogo:
		v := d.Logo
		return &v, true
	case KeyTaxRules:
		v := d.Tax
		return &v, true
	case KeyImageRules:
		v := d.Image
		return &v, true
	default:
		return nil, false
	}
}
