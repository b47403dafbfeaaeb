package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	KeyBonusThresholdWeekday = "bonus_threshold_weekday"
	KeyBonusThresholdWeekend = "bonus_threshold_weekend"
	KeyBonusIncrement        = "bonus_increment"
	KeyBonusBasePerPoint     = "bonus_base_per_point"
	KeyBonusMaxPerPoint      = "bonus_max_per_point"
	KeyWelfareFee            = "welfare_fee"
	KeyTaxRate               = "tax_rate"
	KeyLatePickupBonus       = "late_pickup_bonus"
	KeyReferralBonus         = "referral_bonus"
)

// Settings is the store-level configuration every payroll calculation takes
// by value. TaxRatePercent is the share kept after withholding, 90 = 0.9.
type Settings struct {
	BonusThresholdWeekday int64 `json:"bonus_threshold_weekday"`
	BonusThresholdWeekend int64 `json:"bonus_threshold_weekend"`
	BonusIncrement        int64 `json:"bonus_increment"`
	BonusBasePerPoint     int64 `json:"bonus_base_per_point"`
	BonusMaxPerPoint      int64 `json:"bonus_max_per_point"`
	WelfareFee            int64 `json:"welfare_fee"`
	TaxRatePercent        int64 `json:"tax_rate"`
	LatePickupBonus       int64 `json:"late_pickup_bonus"`
	ReferralBonus         int64 `json:"referral_bonus"`
}

func DefaultSettings() Settings {
	return Settings{
		BonusThresholdWeekday: 400000,
		BonusThresholdWeekend: 500000,
		BonusIncrement:        400000,
		BonusBasePerPoint:     200,
		BonusMaxPerPoint:      600,
		WelfareFee:            1000,
		TaxRatePercent:        90,
		LatePickupBonus:       500,
		ReferralBonus:         2000,
	}
}

// SettingsFromMap overlays stored key/value rows on the defaults. Missing keys
// keep their default and unknown keys are ignored.
func SettingsFromMap(values map[string]int64) (Settings, error) {
	settings := DefaultSettings()
	for key, value := range values {
		field := settings.field(key)
		if field == nil {
			continue
		}
		*field = value
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// SettingKeys lists the recognised keys in a stable order.
func SettingKeys() []string {
	keys := make([]string, 0, 9)
	for key := range DefaultSettings().Map() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func IsSettingKey(key string) bool {
	var s Settings
	return s.field(key) != nil
}

// ValidateSetting checks a single value before it is stored.
func ValidateSetting(key string, value int64) error {
	settings := DefaultSettings()
	field := settings.field(key)
	if field == nil {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	*field = value
	return settings.validateKey(key)
}

func (s Settings) Validate() error {
	for _, key := range SettingKeys() {
		if err := s.validateKey(key); err != nil {
			return err
		}
	}
	return nil
}

func (s Settings) validateKey(key string) error {
	value := *s.field(key)
	switch key {
	case KeyBonusIncrement:
		if value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidSetting, key)
		}
	case KeyTaxRate:
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidSetting, key)
		}
	case KeyBonusMaxPerPoint:
		if value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, key)
		}
	default:
		if value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, key)
		}
	}
	return nil
}

func (s Settings) TaxRate() decimal.Decimal {
	return yen(s.TaxRatePercent).Shift(-2)
}

func (s Settings) Map() map[string]int64 {
	return map[string]int64{
		KeyBonusThresholdWeekday: s.BonusThresholdWeekday,
		KeyBonusThresholdWeekend: s.BonusThresholdWeekend,
		KeyBonusIncrement:        s.BonusIncrement,
		KeyBonusBasePerPoint:     s.BonusBasePerPoint,
		KeyBonusMaxPerPoint:      s.BonusMaxPerPoint,
		KeyWelfareFee:            s.WelfareFee,
		KeyTaxRate:               s.TaxRatePercent,
		KeyLatePickupBonus:       s.LatePickupBonus,
		KeyReferralBonus:         s.ReferralBonus,
	}
}

func (s *Settings) field(key string) *int64 {
	switch key {
	case KeyBonusThresholdWeekday:
		return &s.BonusThresholdWeekday
	case KeyBonusThresholdWeekend:
		return &s.BonusThresholdWeekend
	case KeyBonusIncrement:
		return &s.BonusIncrement
	case KeyBonusBasePerPoint:
		return &s.BonusBasePerPoint
	case KeyBonusMaxPerPoint:
		return &s.BonusMaxPerPoint
	case KeyWelfareFee:
		return &s.WelfareFee
	case KeyTaxRate:
		return &s.TaxRatePercent
	case KeyLatePickupBonus:
		return &s.LatePickupBonus
	case KeyReferralBonus:
		return &s.ReferralBonus
	default:
		return nil
	}
}
