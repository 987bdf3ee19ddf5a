package service

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/queue"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

// MagicLinkTTL is the default lifetime of a magic link.
const MagicLinkTTL = 15 * time.Minute

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

// MagicLinkStore persists magic-link tokens.
type MagicLinkStore interface {
	Store(ctx context.Context, t *model.MagicLinkToken) error
	Lookup(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLinkToken, error)
	Consume(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLinkToken, error)
}

// MagicLinkOptions configures a MagicLinkService.
type MagicLinkOptions struct {
	BaseURL string
	TTL     time.Duration
	Now     func() time.Time
}

// MagicLinkService issues and consumes single-use sign-in links.
type MagicLinkService struct {
	tokens     MagicLinkStore
	store      ReservationStore
	state      *ReservationService
	identities *IdentityService
	mailer     Mailer
	baseURL    string
	ttl        time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// NewMagicLinkService wires the service.
func NewMagicLinkService(tokens MagicLinkStore, store ReservationStore, state *ReservationService, identities *IdentityService, mailer Mailer, log *zap.Logger, opts MagicLinkOptions) *MagicLinkService {
	if opts.TTL <= 0 {
		opts.TTL = MagicLinkTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MagicLinkService{
		tokens:     tokens,
		store:      store,
		state:      state,
		identities: identities,
		mailer:     mailer,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		ttl:        opts.TTL,
		now:        opts.Now,
		log:        log.With(zap.String("component", "magic_link")),
	}
}

// IssueForReservation sends a link that, once consumed, binds the pending
// reservation's order to the consumer owning email.
func (s *MagicLinkService) IssueForReservation(ctx context.Context, email, reservationID string, agreed bool) (time.Time, error) {
	email = repository.NormalizeEmail(email)
	if !validEmail(email) {
		return time.Time{}, ErrInvalidEmail
	}
	if !agreed {
		return time.Time{}, ErrAgreementRequired
	}
	res, err := s.store.Get(ctx, reservationID)
	if err != nil {
		return time.Time{}, err
	}
	if res.Status != model.StatusPending {
		return time.Time{}, repository.ErrInvalidTransition
	}
	rid := res.ID
	return s.issue(ctx, &model.MagicLinkToken{Email: email, ReservationID: &rid, Agreed: true})
}

// IssueLogin sends a sign-in link for the consumer keyed by email.
func (s *MagicLinkService) IssueLogin(ctx context.Context, email string) (time.Time, error) {
	consumer, err := s.identities.ResolveByEmail(ctx, email)
	if err != nil {
		return time.Time{}, err
	}
	cid := consumer.ID
	return s.issue(ctx, &model.MagicLinkToken{Email: *consumer.Email, ConsumerID: &cid})
}

func (s *MagicLinkService) issue(ctx context.Context, t *model.MagicLinkToken) (time.Time, error) {
	raw, err := utils.NewOpaqueToken(tokenBytes)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now().UTC().Truncate(time.Second)
	t.TokenHash = utils.HashToken(raw)
	t.CreatedAt = now
	t.ExpiresAt = now.Add(s.ttl)
	if err := s.tokens.Store(ctx, t); err != nil {
		return time.Time{}, err
	}
	msg := queue.MagicLinkMessage{
		To:        t.Email,
		URL:       s.baseURL + "/auth/consume?token=" + url.QueryEscape(raw),
		ExpiresAt: database.FormatTime(t.ExpiresAt),
	}
	if t.ReservationID != nil {
		msg.ReservationID = *t.ReservationID
	}
	if err := s.mailer.SendMagicLink(ctx, msg); err != nil {
		return time.Time{}, err
	}
	s.log.Info("magic link sent", zap.String("token_id", t.ID), zap.Bool("reservation", t.ReservationID != nil))
	return t.ExpiresAt, nil
}

// ConsumeResult is the identity a consumed link proves.
type ConsumeResult struct {
	Email         string
	ConsumerID    string
	ReservationID *string
}

// Consume redeems a raw token once. For reservation links the consumer is
// resolved by email and bound to the reservation's order before the token is
// marked used, so a failed bind leaves the link redeemable.
func (s *MagicLinkService) Consume(ctx context.Context, raw string) (*ConsumeResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, repository.ErrTokenNotFound
	}
	hash, now := utils.HashToken(raw), s.now()
	t, err := s.tokens.Lookup(ctx, hash, now)
	if err != nil {
		return nil, err
	}
	out := &ConsumeResult{Email: t.Email, ReservationID: t.ReservationID}
	if t.ConsumerID != nil {
		out.ConsumerID = *t.ConsumerID
	} else {
		consumer, err := s.identities.ResolveByEmail(ctx, t.Email)
		if err != nil {
			return nil, err
		}
		out.ConsumerID = consumer.ID
		if t.ReservationID != nil {
			res, err := s.store.Get(ctx, *t.ReservationID)
			if err != nil {
				return nil, err
			}
			if err := s.state.BindOrder(ctx, res, consumer.ID); err != nil {
				return nil, err
			}
		}
	}
	if _, err := s.tokens.Consume(ctx, hash, now); err != nil {
		return nil, err
	}
	return out, nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}
