package service

import (
	"context"
	"sort"
	"time"

	"github.com/oyvindhs/oppgjor-backend/internal/domain"
)

// RegionalService resolves per-jurisdiction pricing reference data. The
// underlying data is owned by an administrative collaborator; this service
// only reads it.
type RegionalService struct {
	repo domain.RegionalConfigRepository
}

// NewRegionalService creates a new RegionalService
func NewRegionalService(repo domain.RegionalConfigRepository) *RegionalService {
	return &RegionalService{repo: repo}
}

// Config returns the regional config for a country code. A missing config
// is a hard failure, never a silent default.
func (s *RegionalService) Config(ctx context.Context, countryCode string) (*domain.RegionalConfig, error) {
	if countryCode == "" {
		return nil, domain.ErrConfigNotFound
	}
	return s.repo.GetConfig(ctx, countryCode)
}

// ApplicableCustomization selects the single highest-priority customization
// whose amount range, validity window, and tier filter all match, or nil
// when none applies.
func (s *RegionalService) ApplicableCustomization(ctx context.Context, countryCode string, amountMinor int64, tier string, now time.Time) (*domain.FeeCustomization, error) {
	customizations, err := s.repo.ListCustomizations(ctx, countryCode)
	if err != nil {
		return nil, err
	}

	matching := make([]domain.FeeCustomization, 0, len(customizations))
	for _, c := range customizations {
		if c.AppliesTo(amountMinor, tier, now) {
			matching = append(matching, c)
		}
	}
	if len(matching) == 0 {
		return nil, nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority > matching[j].Priority
	})
	return &matching[0], nil
}
