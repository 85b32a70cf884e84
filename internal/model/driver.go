package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// drivers
type Driver struct {
	ID       uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string  `gorm:"type:varchar(255);not null" json:"name"`
	IDNumber *string `gorm:"type:varchar(64)" json:"id_number,omitempty"`
	Phone    string  `gorm:"type:varchar(32);not null;index" json:"phone"`

	// JSON array of city names the driver covers.
	AssignedAreas datatypes.JSON `json:"assigned_areas"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Orders         []Order         `gorm:"foreignKey:DriverID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	DelegateSheets []DelegateSheet `gorm:"foreignKey:DriverID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// Areas decodes AssignedAreas. An empty column yields an empty slice.
func (d *Driver) Areas() ([]string, error) {
	if len(d.AssignedAreas) == 0 {
		return []string{}, nil
	}
	var areas []string
	if err := json.Unmarshal(d.AssignedAreas, &areas); err != nil {
		return nil, err
	}
	if areas == nil {
		areas = []string{}
	}
	return areas, nil
}

// SetAreas encodes areas into AssignedAreas.
func (d *Driver) SetAreas(areas []string) error {
	if areas == nil {
		areas = []string{}
	}
	raw, err := json.Marshal(areas)
	if err != nil {
		return err
	}
	d.AssignedAreas = datatypes.JSON(raw)
	return nil
}

// Covers reports whether city is one of the driver's assigned areas.
func (d *Driver) Covers(city string) bool {
	areas, err := d.Areas()
	if err != nil {
		return false
	}
	for _, a := range areas {
		if a == city {
			return true
		}
	}
	return false
}
