package service

import (
	"context"
	"errors"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/repository"
)

// ConsumerStore is the consumer persistence used for identity resolution.
type ConsumerStore interface {
	GetByID(ctx context.Context, id string) (*model.Consumer, error)
	GetByEmail(ctx context.Context, email string) (*model.Consumer, error)
	GetByLineUserID(ctx context.Context, lineUserID string) (*model.Consumer, error)
	Create(ctx context.Context, email, lineUserID string) (*model.Consumer, error)
}

// IdentityService resolves the canonical consumer for an email or a
// messaging user id. The two lookups are independent and never merged.
type IdentityService struct {
	consumers ConsumerStore
}

// NewIdentityService returns an IdentityService over consumers.
func NewIdentityService(consumers ConsumerStore) *IdentityService {
	return &IdentityService{consumers: consumers}
}

// ResolveByEmail returns the consumer keyed by email, creating it on first use.
func (s *IdentityService) ResolveByEmail(ctx context.Context, email string) (*model.Consumer, error) {
	email = repository.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	return s.resolve(ctx,
		func() (*model.Consumer, error) { return s.consumers.GetByEmail(ctx, email) },
		func() (*model.Consumer, error) { return s.consumers.Create(ctx, email, "") })
}

// ResolveByLineUserID returns the consumer keyed by messaging user id,
// creating it on first use.
func (s *IdentityService) ResolveByLineUserID(ctx context.Context, lineUserID string) (*model.Consumer, error) {
	return s.resolve(ctx,
		func() (*model.Consumer, error) { return s.consumers.GetByLineUserID(ctx, lineUserID) },
		func() (*model.Consumer, error) { return s.consumers.Create(ctx, "", lineUserID) })
}

// Get returns a consumer by id.
func (s *IdentityService) Get(ctx context.Context, id string) (*model.Consumer, error) {
	return s.consumers.GetByID(ctx, id)
}

// resolve looks up, then creates, then looks up again in case a concurrent
// request created the same key first.
func (s *IdentityService) resolve(ctx context.Context, lookup, create func() (*model.Consumer, error)) (*model.Consumer, error) {
	c, err := lookup()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrConsumerNotFound) {
		return nil, err
	}
	c, err = create()
	if err == nil {
		return c, nil
	}
	if again, lerr := lookup(); lerr == nil {
		return again, nil
	}
	return nil, err
}
