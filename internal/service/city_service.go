package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

type CityService struct {
	repos *repository.Repositories
	log   *logger.Logger
}

func NewCityService(repos *repository.Repositories, log *logger.Logger) *CityService {
	return &CityService{repos: repos, log: log.With("service", "city")}
}

func (s *CityService) Create(ctx context.Context, name string) (*model.City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("city name is required")
	}
	city := &model.City{Name: name}
	if err := s.repos.Cities.Create(ctx, city); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("city %q already exists: %w", name, ErrConflict)
		}
		return nil, fmt.Errorf("create city: %w", err)
	}
	return city, nil
}

// List returns cities ordered by name, optionally narrowed by a substring.
func (s *CityService) List(ctx context.Context, search string) ([]model.City, error) {
	return s.repos.Cities.FindMany(ctx, repository.FindArgs[repository.CityFilter]{
		Where:   repository.CityFilter{NameContains: search},
		OrderBy: []repository.OrderBy{repository.Asc("name")},
	})
}

// Rename changes the city name and rewrites it on orders and in every
// driver's areas.
func (s *CityService) Rename(ctx context.Context, id uint, name string) (*model.City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("city name is required")
	}

	var renamed *model.City
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		city, err := tx.Cities.FindUnique(ctx, id)
		if err != nil {
			return notFound("city", id, err)
		}
		old := city.Name
		if renamed, err = tx.Cities.Update(ctx, id, repository.CityUpdate{Name: &name}); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("city %q already exists: %w", name, ErrConflict)
			}
			return fmt.Errorf("rename city: %w", err)
		}
		if old == name {
			return nil
		}
		if _, err := tx.Orders.UpdateMany(ctx, repository.OrderFilter{City: &old}, repository.OrderUpdate{City: &name}); err != nil {
			return fmt.Errorf("rename city on orders: %w", err)
		}

		drivers, err := tx.Drivers.FindMany(ctx, repository.FindArgs[repository.DriverFilter]{
			Where: repository.DriverFilter{Area: old},
		})
		if err != nil {
			return err
		}
		for i := range drivers {
			areas, err := drivers[i].Areas()
			if err != nil {
				return fmt.Errorf("driver %d areas: %w", drivers[i].ID, err)
			}
			for j, a := range areas {
				if a == old {
					areas[j] = name
				}
			}
			if err := drivers[i].SetAreas(dedupe(areas)); err != nil {
				return err
			}
			if _, err := tx.Drivers.Update(ctx, drivers[i].ID, repository.DriverUpdate{AssignedAreas: &drivers[i].AssignedAreas}); err != nil {
				return fmt.Errorf("update driver %d areas: %w", drivers[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// Delete removes a city nobody covers.
func (s *CityService) Delete(ctx context.Context, id uint) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		city, err := tx.Cities.FindUnique(ctx, id)
		if err != nil {
			return notFound("city", id, err)
		}
		covering, err := tx.Drivers.Count(ctx, repository.DriverFilter{Area: city.Name})
		if err != nil {
			return err
		}
		if covering > 0 {
			return fmt.Errorf("city %q is covered by %d driver(s): %w", city.Name, covering, ErrInUse)
		}
		_, err = tx.Cities.Delete(ctx, id)
		return err
	})
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
