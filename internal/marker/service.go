// Package marker implements the create/read/update/delete operations on markers.
package marker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nugulmap/markers/internal/model"
	"github.com/nugulmap/markers/internal/store"
)

// ErrNotFound is returned when no marker exists under the requested id.
var ErrNotFound = eris.New("marker: not found")

// Service implements marker operations on top of a document store.
type Service struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new marker. Any client-supplied id or timestamps are replaced.
func (s *Service) Create(ctx context.Context, m model.Marker) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	m.ApplyDefaults()

	now := s.now()
	m.ID = s.newID()
	m.CreatedAt = &now
	m.LastUpdated = &now

	doc, err := m.ToDocument()
	if err != nil {
		return "", eris.Wrap(err, "marker: encode")
	}
	if err := s.store.Put(ctx, m.ID, doc); err != nil {
		return "", eris.Wrapf(err, "marker: create %s", m.ID)
	}
	return m.ID, nil
}

// Get returns the marker stored under id.
func (s *Service) Get(ctx context.Context, id string) (*model.Marker, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.wrap(err, "get", id)
	}
	return model.MarkerFromDocument(id, doc)
}

// List returns a page of markers.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]*model.Marker, error) {
	entries, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "marker: list")
	}
	out := make([]*model.Marker, 0, len(entries))
	for _, e := range entries {
		m, err := model.MarkerFromDocument(e.ID, e.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Update merges the supplied fields into an existing marker and refreshes last_updated.
func (s *Service) Update(ctx context.Context, id string, u model.MarkerUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	doc, err := u.ToDocument()
	if err != nil {
		return eris.Wrap(err, "marker: encode update")
	}
	if u.IsEmpty() {
		zap.L().Debug("marker: empty update, refreshing last_updated only", zap.String("id", id))
	}
	doc["last_updated"] = s.now().Format(time.RFC3339Nano)

	if err := s.store.Patch(ctx, id, doc); err != nil {
		return s.wrap(err, "update", id)
	}
	return nil
}

// Delete removes a marker.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return s.wrap(err, "delete", id)
	}
	return nil
}

func (s *Service) wrap(err error, op, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return eris.Wrapf(ErrNotFound, "marker: %s %s", op, id)
	}
	return eris.Wrapf(err, "marker: %s %s", op, id)
}
