package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

type DriverService struct {
	repos *repository.Repositories
	log   *logger.Logger
}

func NewDriverService(repos *repository.Repositories, log *logger.Logger) *DriverService {
	return &DriverService{repos: repos, log: log.With("service", "driver")}
}

type DriverInput struct {
	Name          string
	IDNumber      *string
	Phone         string
	AssignedAreas []string
}

// DriverPatch changes only the non-nil fields.
type DriverPatch struct {
	Name          *string
	IDNumber      *string
	Phone         *string
	AssignedAreas *[]string
}

func (s *DriverService) Create(ctx context.Context, in DriverInput) (*model.Driver, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationf("driver name is required")
	}
	phone := normalizePhone(in.Phone)
	if phone == "" {
		return nil, validationf("driver phone is required")
	}

	driver := &model.Driver{Name: name, Phone: phone, IDNumber: trimmedOrNil(in.IDNumber)}
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		areas, err := checkAreas(ctx, tx, in.AssignedAreas)
		if err != nil {
			return err
		}
		if err := driver.SetAreas(areas); err != nil {
			return err
		}
		return tx.Drivers.Create(ctx, driver)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "driver created", "driver_id", driver.ID)
	return driver, nil
}

func (s *DriverService) Update(ctx context.Context, id uint, p DriverPatch) (*model.Driver, error) {
	var upd repository.DriverUpdate
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, validationf("driver name is required")
		}
		upd.Name = &name
	}
	if p.Phone != nil {
		phone := normalizePhone(*p.Phone)
		if phone == "" {
			return nil, validationf("driver phone is required")
		}
		upd.Phone = &phone
	}
	if p.IDNumber != nil {
		if v := trimmedOrNil(p.IDNumber); v != nil {
			upd.IDNumber = v
		} else {
			upd.ClearIDNumber = true
		}
	}

	var updated *model.Driver
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Drivers.FindUnique(ctx, id); err != nil {
			return notFound("driver", id, err)
		}
		if p.AssignedAreas != nil {
			areas, err := checkAreas(ctx, tx, *p.AssignedAreas)
			if err != nil {
				return err
			}
			var d model.Driver
			if err := d.SetAreas(areas); err != nil {
				return err
			}
			raw := d.AssignedAreas
			upd.AssignedAreas = &raw
		}
		var err error
		updated, err = tx.Drivers.Update(ctx, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *DriverService) Get(ctx context.Context, id uint) (*model.Driver, error) {
	d, err := s.repos.Drivers.FindUnique(ctx, id)
	if err != nil {
		return nil, notFound("driver", id, err)
	}
	return d, nil
}

func (s *DriverService) List(ctx context.Context, f repository.DriverFilter, page repository.Page) ([]model.Driver, int64, error) {
	page = page.Normalize()
	total, err := s.repos.Drivers.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.repos.Drivers.FindMany(ctx, repository.FindArgs[repository.DriverFilter]{
		Where:   f,
		OrderBy: []repository.OrderBy{repository.Asc("name"), repository.Asc("id")},
		Skip:    page.Offset(),
		Take:    page.Size,
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListForCity returns the drivers whose assigned areas include city.
func (s *DriverService) ListForCity(ctx context.Context, city string) ([]model.Driver, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, validationf("city is required")
	}
	return s.repos.Drivers.FindMany(ctx, repository.FindArgs[repository.DriverFilter]{
		Where:   repository.DriverFilter{Area: city},
		OrderBy: []repository.OrderBy{repository.Asc("name")},
	})
}

// Delete removes a driver that has no delegate sheets and no order history.
// Orders merely assigned to the driver fall back to pending.
func (s *DriverService) Delete(ctx context.Context, id uint) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Drivers.FindUnique(ctx, id); err != nil {
			return notFound("driver", id, err)
		}
		sheets, err := tx.DelegateSheets.Count(ctx, repository.DelegateSheetFilter{DriverID: &id})
		if err != nil {
			return err
		}
		if sheets > 0 {
			return fmt.Errorf("driver %d has %d delegate sheet(s): %w", id, sheets, ErrInUse)
		}
		pending := model.OrderStatusPending
		if _, err := tx.Orders.UpdateMany(ctx,
			repository.OrderFilter{DriverID: &id, Statuses: []model.OrderStatus{model.OrderStatusAssigned}},
			repository.OrderUpdate{ClearDriver: true, Status: &pending},
		); err != nil {
			return err
		}
		history, err := tx.Orders.Count(ctx, repository.OrderFilter{DriverID: &id})
		if err != nil {
			return err
		}
		if history > 0 {
			return fmt.Errorf("driver %d has %d order(s) in progress or delivered: %w", id, history, ErrInUse)
		}
		_, err = tx.Drivers.Delete(ctx, id)
		return err
	})
}

// checkAreas trims, de-duplicates and verifies that every area is a known city.
func checkAreas(ctx context.Context, repos *repository.Repositories, in []string) ([]string, error) {
	areas := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}
	areas = dedupe(areas)
	if len(areas) == 0 {
		return areas, nil
	}

	known, err := repos.Cities.FindMany(ctx, repository.FindArgs[repository.CityFilter]{
		Where: repository.CityFilter{Names: areas},
	})
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(known))
	for _, c := range known {
		have[c.Name] = struct{}{}
	}
	var missing []string
	for _, a := range areas {
		if _, ok := have[a]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		return nil, validationf("unknown cities: %s", strings.Join(missing, ", "))
	}
	return areas, nil
}

func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
