package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// DefaultStatus is assigned to markers created without a status.
const DefaultStatus = "operating"

// MaxStringLength bounds every free-text field accepted through the API.
const MaxStringLength = 1000

// Marker is a point-of-interest document in the markers collection.
// Every field except ID is optional; documents written by the CSV ingestion
// job only carry the canonical ingestion fields.
type Marker struct {
	ID          string     `json:"id,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Address     *string    `json:"address,omitempty"`
	Region      *string    `json:"region,omitempty"`
	Type        *string    `json:"type,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Amenities   []string   `json:"amenities,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	Reviews     []string   `json:"reviews,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`

	// Ingestion-only fields, read back from documents written by the CSV job.
	Subtype *string `json:"subtype,omitempty"`
	Manager *string `json:"manager,omitempty"`
	Size    *string `json:"size,omitempty"`
	Date    *string `json:"date,omitempty"`
}

// MarkerUpdate is a partial update. Nil fields are left untouched; a
// non-nil list replaces the stored list, so an empty list clears it.
type MarkerUpdate struct {
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Address     *string   `json:"address,omitempty"`
	Region      *string   `json:"region,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Amenities   *[]string `json:"amenities,omitempty"`
	Capacity    *int      `json:"capacity,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	Reviews     *[]string `json:"reviews,omitempty"`
}

// ValidationError reports input that failed schema checks.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// ApplyDefaults fills create-time defaults.
func (m *Marker) ApplyDefaults() {
	if m.Status == nil {
		s := DefaultStatus
		m.Status = &s
	}
}

// Validate checks the fields accepted through the API.
func (m *Marker) Validate() error {
	return validateFields(fields{
		latitude: m.Latitude, longitude: m.Longitude, capacity: m.Capacity, rating: m.Rating,
		strings: map[string]*string{
			"name": m.Name, "description": m.Description, "address": m.Address,
			"region": m.Region, "type": m.Type, "status": m.Status, "image_url": m.ImageURL,
		},
		lists: map[string][]string{"amenities": m.Amenities, "reviews": m.Reviews},
	})
}

// Validate checks the fields present in the update.
func (u *MarkerUpdate) Validate() error {
	return validateFields(fields{
		latitude: u.Latitude, longitude: u.Longitude, capacity: u.Capacity, rating: u.Rating,
		strings: map[string]*string{
			"name": u.Name, "description": u.Description, "address": u.Address,
			"region": u.Region, "type": u.Type, "status": u.Status, "image_url": u.ImageURL,
		},
		lists: map[string][]string{"amenities": deref(u.Amenities), "reviews": deref(u.Reviews)},
	})
}

// IsEmpty reports whether the update carries no fields.
func (u *MarkerUpdate) IsEmpty() bool {
	doc, err := toDocument(u)
	return err == nil && len(doc) == 0
}

// ToDocument returns the set fields of the marker as a document.
func (m *Marker) ToDocument() (map[string]any, error) {
	return toDocument(m)
}

// ToDocument returns the set fields of the update as a document.
func (u *MarkerUpdate) ToDocument() (map[string]any, error) {
	return toDocument(u)
}

// MarkerFromDocument decodes a stored document. The document key is used
// as the ID when the document has none (ingested documents).
func MarkerFromDocument(key string, doc map[string]any) (*Marker, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrapf(err, "model: marshal document %s", key)
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "model: decode document %s", key)
	}
	if m.ID == "" {
		m.ID = key
	}
	return &m, nil
}

func toDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal")
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "model: unmarshal document")
	}
	return doc, nil
}

type fields struct {
	latitude  *float64
	longitude *float64
	capacity  *int
	rating    *float64
	strings   map[string]*string
	lists     map[string][]string
}

func validateFields(f fields) error {
	var problems []string

	if f.latitude != nil && (*f.latitude < -90 || *f.latitude > 90) {
		problems = append(problems, "latitude must be between -90 and 90")
	}
	if f.longitude != nil && (*f.longitude < -180 || *f.longitude > 180) {
		problems = append(problems, "longitude must be between -180 and 180")
	}
	if f.capacity != nil && *f.capacity < 0 {
		problems = append(problems, "capacity must be >= 0")
	}
	if f.rating != nil && *f.rating < 0 {
		problems = append(problems, "rating must be >= 0")
	}
	for _, name := range sortedKeys(f.strings) {
		if s := f.strings[name]; s != nil && utf8.RuneCountInString(*s) > MaxStringLength {
			problems = append(problems, fmt.Sprintf("%s must be at most %d characters", name, MaxStringLength))
		}
	}
	for _, name := range sortedKeys(f.lists) {
		for _, s := range f.lists[name] {
			if utf8.RuneCountInString(s) > MaxStringLength {
				problems = append(problems, fmt.Sprintf("%s entries must be at most %d characters", name, MaxStringLength))
				break
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func deref(list *[]string) []string {
	if list == nil {
		return nil
	}
	return *list
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
