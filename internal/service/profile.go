package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
)

// GetProfile returns the company profile printed on invoices. Before the
// first save it is an empty profile rather than an error.
func (s *Service) GetProfile(ctx context.Context) (domain.Profile, error) {
	profile, err := s.repo.GetProfile(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Profile{}, nil
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return *profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileRequest) (domain.Profile, error) {
	profile := domain.Profile{
		UserName:       strings.TrimSpace(req.UserName),
		CompanyName:    strings.TrimSpace(req.CompanyName),
		CompanyICE:     strings.TrimSpace(req.CompanyICE),
		CompanyAddress: strings.TrimSpace(req.CompanyAddress),
		CompanyPhone:   strings.TrimSpace(req.CompanyPhone),
		UpdatedAt:      s.now().UTC(),
	}
	if profile.CompanyName == "" {
		return domain.Profile{}, fmt.Errorf("%w: company_name is required", domain.ErrInvalidRequest)
	}

	err := s.write(ctx, func(tx store.LedgerTx) error {
		return tx.SaveProfile(ctx, profile)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] profile updated company=%q by=%s", profile.CompanyName, actor.Username)
	return profile, nil
}
