package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/dispatch-core/internal/model"
)

type CityFilter struct {
	IDs          []uint
	Names        []string
	NameContains string
}

func (f CityFilter) Apply(tx *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		tx = tx.Where("id IN ?", f.IDs)
	}
	if len(f.Names) > 0 {
		tx = tx.Where("name IN ?", f.Names)
	}
	if s := strings.TrimSpace(f.NameContains); s != "" {
		tx = tx.Where("LOWER(name) LIKE ?", likePattern(s))
	}
	return tx
}

type CityUpdate struct {
	Name *string
}

func (u CityUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.Name != nil {
		m["name"] = *u.Name
	}
	return m
}

type CityRepository interface {
	CRUD[model.City, CityFilter, CityUpdate]
	FindByName(ctx context.Context, name string) (*model.City, error)
	Upsert(ctx context.Context, name string) (*model.City, error)
}

type GormCityRepository struct {
	*Store[model.City, CityFilter, CityUpdate]
}

func NewGormCityRepository(db *gorm.DB) *GormCityRepository {
	return &GormCityRepository{
		Store: newStore[model.City, CityFilter, CityUpdate](db, "id",
			newColumnSet([]string{"id", "name", "created_at", "updated_at"}, []string{"id"})),
	}
}

func (r *GormCityRepository) FindByName(ctx context.Context, name string) (*model.City, error) {
	var c model.City
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// Upsert returns the city with this name, creating it when missing.
func (r *GormCityRepository) Upsert(ctx context.Context, name string) (*model.City, error) {
	c := model.City{Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.FindByName(ctx, name)
}
