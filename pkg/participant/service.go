package participant

import (
	"context"
	"errors"
	"fmt"
	"github.com/Geniuskaa/participant_registry/pkg/collection"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Filter selects a partition for ListDetails.
type Filter int

const (
	FilterActive Filter = iota
	FilterDeleted
)

func (f Filter) String() string {
	if f == FilterDeleted {
		return "deleted"
	}
	return "active"
}

// Recorder observes the outcome of every service operation.
type Recorder interface {
	Observe(op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string) {}

// Service owns the participant rules on top of a collection.Store.
//
// Reads followed by writes (existence check then set) are not atomic: two
// concurrent adds of the same email can both pass the check and the later
// write wins.
type Service struct {
	store    collection.Store
	logger   *zap.Logger
	tracer   trace.Tracer
	recorder Recorder
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func NewService(store collection.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("participant"),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the keys of every stored participant, deleted ones included.
func (s *Service) List(ctx context.Context) (list []collection.Item, err error) {
	ctx, span := s.start(ctx, "List")
	defer func() { s.finish(span, "List", err) }()

	list, err = s.store.List(ctx)
	if err != nil {
		return nil, storeFailure("List", err)
	}
	return list, nil
}

// ListDetails fetches every record and keeps the requested partition. A record
// counts as deleted only when its active prop is exactly false. An empty
// result is not an error.
func (s *Service) ListDetails(ctx context.Context, filter Filter) (entries []Entry, err error) {
	ctx, span := s.start(ctx, "ListDetails", attribute.String("filter", filter.String()))
	defer func() { s.finish(span, "ListDetails", err) }()

	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, storeFailure("ListDetails", err)
	}

	entries = make([]Entry, 0, len(keys))
	for _, k := range keys {
		item, err := s.store.Get(ctx, k.Key)
		if errors.Is(err, collection.ErrNotFound) {
			// Listed but gone by the time it was fetched.
			continue
		}
		if err != nil {
			return nil, storeFailure("ListDetails", err)
		}

		if isDeleted(item.Props) != (filter == FilterDeleted) {
			continue
		}

		p, err := fromItem(item)
		if err != nil {
			return nil, fmt.Errorf("ListDetails failed: %w", err)
		}
		entries = append(entries, Entry{Key: item.Key, Participant: p})
	}

	return entries, nil
}

// GetByEmail returns an active participant.
func (s *Service) GetByEmail(ctx context.Context, email string) (p Participant, err error) {
	ctx, span := s.start(ctx, "GetByEmail", attribute.String("email", email))
	defer func() { s.finish(span, "GetByEmail", err) }()

	return s.getActive(ctx, "GetByEmail", email)
}

// GetWork returns the work fragment of an active participant.
func (s *Service) GetWork(ctx context.Context, email string) (w Work, err error) {
	ctx, span := s.start(ctx, "GetWork", attribute.String("email", email))
	defer func() { s.finish(span, "GetWork", err) }()

	p, err := s.getActive(ctx, "GetWork", email)
	if err != nil {
		return Work{}, err
	}
	return p.Work, nil
}

// GetHome returns the home fragment of an active participant.
func (s *Service) GetHome(ctx context.Context, email string) (h Home, err error) {
	ctx, span := s.start(ctx, "GetHome", attribute.String("email", email))
	defer func() { s.finish(span, "GetHome", err) }()

	p, err := s.getActive(ctx, "GetHome", email)
	if err != nil {
		return Home{}, err
	}
	return p.Home, nil
}

// Add creates a participant. The existence check runs before validation, so a
// taken email is reported as a conflict whatever the rest of the payload is.
func (s *Service) Add(ctx context.Context, req Request) (p Participant, err error) {
	ctx, span := s.start(ctx, "Add", attribute.String("email", req.Email))
	defer func() { s.finish(span, "Add", err) }()

	if req.Email != "" {
		_, err := s.store.Get(ctx, req.Email)
		switch {
		case err == nil:
			return Participant{}, ErrConflict
		case !errors.Is(err, collection.ErrNotFound):
			return Participant{}, storeFailure("Add", err)
		}
	}

	res := Validate(req)
	if !res.OK() {
		return Participant{}, &ValidationError{Fields: res.Errors}
	}

	stored, err := s.store.Set(ctx, res.Participant.Email, res.Participant.props())
	if err != nil {
		return Participant{}, storeFailure("Add", err)
	}

	s.logger.Info("Participant added", zap.String("email", stored.Key))
	return fromItem(stored)
}

// Update fully replaces an existing participant, deleted ones included. The
// key is the path email; a payload email that differs from it is rejected
// because email is immutable. The payload's active value is written as is, so
// an update can restore or delete a record.
func (s *Service) Update(ctx context.Context, email string, req Request) (p Participant, err error) {
	ctx, span := s.start(ctx, "Update", attribute.String("email", email))
	defer func() { s.finish(span, "Update", err) }()

	if _, err := s.get(ctx, "Update", email); err != nil {
		return Participant{}, err
	}

	res := Validate(req)
	if req.Email != "" && req.Email != email && IsValidEmail(req.Email) {
		res.Errors = append(res.Errors, FieldError{Field: "email", Message: "cannot be changed"})
	}
	if !res.OK() {
		return Participant{}, &ValidationError{Fields: res.Errors}
	}

	stored, err := s.store.Set(ctx, email, res.Participant.props())
	if err != nil {
		return Participant{}, storeFailure("Update", err)
	}

	s.logger.Info("Participant updated", zap.String("email", email), zap.Bool("active", res.Participant.Active))
	return fromItem(stored)
}

// SoftDelete flags an active participant as deleted and returns the record as
// it was before the change.
func (s *Service) SoftDelete(ctx context.Context, email string) (p Participant, err error) {
	ctx, span := s.start(ctx, "SoftDelete", attribute.String("email", email))
	defer func() { s.finish(span, "SoftDelete", err) }()

	item, err := s.get(ctx, "SoftDelete", email)
	if err != nil {
		return Participant{}, err
	}
	if isDeleted(item.Props) {
		return Participant{}, ErrAlreadyDeleted
	}

	snapshot, err := fromItem(item)
	if err != nil {
		return Participant{}, fmt.Errorf("SoftDelete failed: %w", err)
	}

	if _, err := s.store.Set(ctx, email, collection.Props{"active": false}); err != nil {
		return Participant{}, storeFailure("SoftDelete", err)
	}

	s.logger.Info("Participant soft-deleted", zap.String("email", email))
	return snapshot, nil
}

func (s *Service) get(ctx context.Context, op, email string) (collection.Item, error) {
	item, err := s.store.Get(ctx, email)
	if errors.Is(err, collection.ErrNotFound) {
		return collection.Item{}, ErrNotFound
	}
	if err != nil {
		return collection.Item{}, storeFailure(op, err)
	}
	return item, nil
}

func (s *Service) getActive(ctx context.Context, op, email string) (Participant, error) {
	item, err := s.get(ctx, op, email)
	if err != nil {
		return Participant{}, err
	}
	if isDeleted(item.Props) {
		return Participant{}, ErrGone
	}

	p, err := fromItem(item)
	if err != nil {
		return Participant{}, fmt.Errorf("%s failed: %w", op, err)
	}
	return p, nil
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "participant."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	defer span.End()

	outcome := Outcome(err)
	s.recorder.Observe(op, outcome)
	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

// Outcome names the class of a service error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGone):
		return "gone"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyDeleted):
		return "already_deleted"
	default:
		return "error"
	}
}
