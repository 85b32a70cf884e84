package repository

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/dispatch-core/internal/model"
)

type DriverFilter struct {
	IDs    []uint
	Phone  *string
	Search string // name, phone or id number
	// Area matches drivers whose assigned_areas array holds this city name.
	Area string
}

func (f DriverFilter) Apply(tx *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		tx = tx.Where("id IN ?", f.IDs)
	}
	if f.Phone != nil {
		tx = tx.Where("phone = ?", *f.Phone)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		tx = tx.Where("LOWER(name) LIKE ? OR phone LIKE ? OR LOWER(id_number) LIKE ?", p, p, p)
	}
	if f.Area != "" {
		tx = tx.Where(datatypes.JSONArrayQuery("assigned_areas").Contains(f.Area))
	}
	return tx
}

type DriverUpdate struct {
	Name          *string
	IDNumber      *string
	ClearIDNumber bool
	Phone         *string
	AssignedAreas *datatypes.JSON
}

func (u DriverUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.Name != nil {
		m["name"] = *u.Name
	}
	if u.ClearIDNumber {
		m["id_number"] = nil
	} else if u.IDNumber != nil {
		m["id_number"] = *u.IDNumber
	}
	if u.Phone != nil {
		m["phone"] = *u.Phone
	}
	if u.AssignedAreas != nil {
		m["assigned_areas"] = *u.AssignedAreas
	}
	return m
}

type DriverRepository interface {
	CRUD[model.Driver, DriverFilter, DriverUpdate]
	FindByPhone(ctx context.Context, phone string) (*model.Driver, error)
}

type GormDriverRepository struct {
	*Store[model.Driver, DriverFilter, DriverUpdate]
}

func NewGormDriverRepository(db *gorm.DB) *GormDriverRepository {
	return &GormDriverRepository{
		Store: newStore[model.Driver, DriverFilter, DriverUpdate](db, "id",
			newColumnSet([]string{"id", "name", "phone", "created_at", "updated_at"}, []string{"id"})),
	}
}

func (r *GormDriverRepository) FindByPhone(ctx context.Context, phone string) (*model.Driver, error) {
	var d model.Driver
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}
