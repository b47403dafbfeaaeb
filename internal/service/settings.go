package service

import (
	"context"
	"fmt"
	"strings"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
)

// GetSettings returns the effective payroll settings with the stored overrides.
func (s *Service) GetSettings(ctx context.Context) (SettingsView, error) {
	if _, err := requireStaff(ctx); err != nil {
		return SettingsView{}, err
	}
	settings, stored, err := s.loadSettings(ctx)
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{Settings: settings, Stored: stored}, nil
}

func (s *Service) UpdateSetting(ctx context.Context, key string, value int64) (domain.StoreSetting, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.StoreSetting{}, err
	}
	key = strings.TrimSpace(key)
	if err := engine.ValidateSetting(key, value); err != nil {
		return domain.StoreSetting{}, err
	}

	saved, err := s.repo.UpsertSetting(ctx, domain.StoreSetting{
		Key:       key,
		Value:     value,
		UpdatedBy: actor.Username,
		UpdatedAt: s.clock(),
	})
	if err != nil {
		return domain.StoreSetting{}, err
	}
	s.logAudit(ctx, s.defaultStoreID, "setting_update", "setting", key, fmt.Sprintf("value=%d", value))
	return *saved, nil
}
