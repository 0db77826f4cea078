// Package seed loads support staff and food pickup points from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"grandbridge/internal/geo"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

type File struct {
	Staff     []Staff    `yaml:"staff"`
	Locations []Location `yaml:"locations"`
}

type Staff struct {
	Name         string `yaml:"name"`
	Organisation string `yaml:"organisation"`
	Tel          string `yaml:"tel"`
	Email        string `yaml:"email"`
	Intro        string `yaml:"intro"`
}

type Location struct {
	Name           string  `yaml:"name"`
	Address        string  `yaml:"address"`
	Lat            float64 `yaml:"lat"`
	Lng            float64 `yaml:"lng"`
	Description    string  `yaml:"description"`
	OperatingHours string  `yaml:"operating_hours"`
	ContactInfo    string  `yaml:"contact_info"`
	Capacity       string  `yaml:"capacity"`
	FoodTypes      string  `yaml:"food_types"`
}

// Store is the part of the database a seed writes to.
type Store interface {
	StaffList(ctx context.Context) ([]model.Staff, error)
	CreateStaff(ctx context.Context, m *model.Staff) error
	BulkSaveLocations(ctx context.Context, locs []model.Location, invalid []string) (*store.BulkResult, error)
}

type Result struct {
	StaffAdded   int
	StaffSkipped int
	Locations    *store.BulkResult
}

// Parse decodes a seed file. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, s := range f.Staff {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" {
			return nil, fmt.Errorf("staff %d: name and email are required", i)
		}
	}
	return &f, nil
}

// Apply inserts staff whose email is not on file yet and every location that
// is not a near-duplicate of an existing one.
func Apply(ctx context.Context, st Store, f *File) (*Result, error) {
	existing, err := st.StaffList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[strings.ToLower(s.Email)] = true
	}

	res := &Result{}
	for _, s := range f.Staff {
		key := strings.ToLower(strings.TrimSpace(s.Email))
		if seen[key] {
			res.StaffSkipped++
			continue
		}
		m := &model.Staff{
			Name:         strings.TrimSpace(s.Name),
			Organisation: s.Organisation,
			Tel:          s.Tel,
			Email:        strings.TrimSpace(s.Email),
			Intro:        s.Intro,
		}
		if err := st.CreateStaff(ctx, m); err != nil {
			return nil, fmt.Errorf("staff %s: %w", s.Email, err)
		}
		seen[key] = true
		res.StaffAdded++
	}

	var (
		locs    []model.Location
		invalid []string
	)
	for i, l := range f.Locations {
		p := geo.Point{Lat: l.Lat, Lng: l.Lng}
		if !geo.Valid(p) {
			invalid = append(invalid, fmt.Sprintf("Item %d: Invalid coordinates", i))
			continue
		}
		locs = append(locs, model.Location{
			Latitude:       l.Lat,
			Longitude:      l.Lng,
			Name:           strings.TrimSpace(l.Name),
			Address:        strings.TrimSpace(l.Address),
			Description:    l.Description,
			OperatingHours: l.OperatingHours,
			ContactInfo:    l.ContactInfo,
			Capacity:       l.Capacity,
			FoodTypes:      l.FoodTypes,
			IsActive:       true,
		})
	}
	res.Locations, err = st.BulkSaveLocations(ctx, locs, invalid)
	if err != nil {
		return nil, fmt.Errorf("locations: %w", err)
	}
	return res, nil
}
