package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

func rawToken(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/consume", u.Path)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestMagicLinkBindsReservationOrder(t *testing.T) {
	f := newFixture(t, jst(time.October, 13, 10, 0))
	out := f.order(t, nil, repository.BulkLine{SizeKg: 5, Quantity: 1}, repository.BulkLine{SizeKg: 10, Quantity: 1})
	ctx := context.Background()

	exp, err := f.links.IssueForReservation(ctx, " Hanako@Example.com ", out.Lines[0].ReservationID, true)
	require.NoError(t, err)
	assert.True(t, exp.Equal(jst(time.October, 13, 10, 15)))

	msg := f.mail.last(t)
	assert.Equal(t, "hanako@example.com", msg.To)
	assert.Equal(t, out.Lines[0].ReservationID, msg.ReservationID)

	f.clock.Set(jst(time.October, 13, 10, 15))
	got, err := f.links.Consume(ctx, rawToken(t, msg.URL))
	require.NoError(t, err)
	assert.Equal(t, "hanako@example.com", got.Email)

	for _, l := range out.Lines {
		res, err := f.repo.Get(ctx, l.ReservationID)
		require.NoError(t, err)
		assert.True(t, res.BoundTo(got.ConsumerID))
	}

	_, err = f.links.Consume(ctx, rawToken(t, msg.URL))
	assert.ErrorIs(t, err, repository.ErrTokenAlreadyUsed)
}

func TestMagicLinkBindFailureKeepsLinkUnused(t *testing.T) {
	f := newFixture(t, jst(time.October, 13, 10, 0))
	out := f.order(t, nil, repository.BulkLine{SizeKg: 5, Quantity: 1}, repository.BulkLine{SizeKg: 10, Quantity: 1})
	ctx := context.Background()

	_, err := f.links.IssueForReservation(ctx, "hanako@example.com", out.Lines[0].ReservationID, true)
	require.NoError(t, err)
	raw := rawToken(t, f.mail.last(t).URL)

	other := f.consumer(t, "jiro@example.com")
	require.NoError(t, f.repo.BindConsumer(ctx, out.Lines[1].ReservationID, other.ID))

	_, err = f.links.Consume(ctx, raw)
	assert.ErrorIs(t, err, repository.ErrConsumerMismatch)

	first, err := f.repo.Get(ctx, out.Lines[0].ReservationID)
	require.NoError(t, err)
	assert.Nil(t, first.ConsumerID, "no sibling is bound on a mismatch")

	tok, err := repository.NewMagicLinkRepo(f.db).Lookup(ctx, utils.HashToken(raw), f.clock.Now())
	require.NoError(t, err)
	assert.Nil(t, tok.UsedAt)
}

func TestMagicLinkValidation(t *testing.T) {
	f := newFixture(t, jst(time.October, 13, 10, 0))
	id := f.order(t, nil).Lines[0].ReservationID
	ctx := context.Background()

	_, err := f.links.IssueForReservation(ctx, "not-an-email", id, true)
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = f.links.IssueForReservation(ctx, "a@example.com", id, false)
	assert.ErrorIs(t, err, ErrAgreementRequired)
	_, err = f.links.IssueForReservation(ctx, "a@example.com", "missing", true)
	assert.ErrorIs(t, err, repository.ErrReservationNotFound)

	_, err = f.svc.Cancel(ctx, id)
	require.NoError(t, err)
	_, err = f.links.IssueForReservation(ctx, "a@example.com", id, true)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	_, err = f.links.Consume(ctx, "")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
	_, err = f.links.Consume(ctx, "never-issued")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestMagicLinkLoginExpires(t *testing.T) {
	f := newFixture(t, jst(time.October, 13, 10, 0))
	ctx := context.Background()

	_, err := f.links.IssueLogin(ctx, "taro@example.com")
	require.NoError(t, err)
	tok := rawToken(t, f.mail.last(t).URL)

	f.clock.Set(jst(time.October, 13, 10, 15).Add(time.Second))
	_, err = f.links.Consume(ctx, tok)
	assert.ErrorIs(t, err, repository.ErrTokenExpired)
}

func TestIdentityKeysAreIndependent(t *testing.T) {
	f := newFixture(t, jst(time.October, 13, 10, 0))
	ctx := context.Background()

	byEmail := f.consumer(t, "Taro@Example.com")
	again := f.consumer(t, "taro@example.com")
	assert.Equal(t, byEmail.ID, again.ID)

	byLine, err := f.ids.ResolveByLineUserID(ctx, "U1")
	require.NoError(t, err)
	assert.NotEqual(t, byEmail.ID, byLine.ID)

	_, err = f.ids.ResolveByEmail(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}
