package eventhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/pkg/logger"
)

type fakeEnrollment struct {
	EnrollFunc   func(ctx context.Context, teamID string, season int) (*command.EnrollTeamResult, error)
	UnenrollFunc func(ctx context.Context, teamID string, season int) (*command.UnenrollTeamResult, error)

	enrolled   []string
	unenrolled []string
}

func (f *fakeEnrollment) EnrollTeam(ctx context.Context, teamID string, season int) (*command.EnrollTeamResult, error) {
	f.enrolled = append(f.enrolled, teamID)
	if f.EnrollFunc != nil {
		return f.EnrollFunc(ctx, teamID, season)
	}
	return &command.EnrollTeamResult{Created: true, Entry: leaderboard.Entry{TeamID: teamID, Rank: 1}}, nil
}

func (f *fakeEnrollment) UnenrollTeam(ctx context.Context, teamID string, season int) (*command.UnenrollTeamResult, error) {
	f.unenrolled = append(f.unenrolled, teamID)
	if f.UnenrollFunc != nil {
		return f.UnenrollFunc(ctx, teamID, season)
	}
	return &command.UnenrollTeamResult{Removed: []leaderboard.BoardKey{leaderboard.OverallKey(season)}}, nil
}

type outcomes map[string]int

func (o outcomes) ObserveEvent(topic, outcome string) { o[topic+"/"+outcome]++ }

type registrations map[string]message.NoPublishHandlerFunc

func (r registrations) Handle(_, topic string, h message.NoPublishHandlerFunc) { r[topic] = h }

func eventMessage(t *testing.T, e contest.TeamPaymentEvent) *message.Message {
	t.Helper()
	body, err := json.Marshal(e)
	require.NoError(t, err)
	return message.NewMessage(uuid.NewString(), body)
}

func validEvent() contest.TeamPaymentEvent {
	return contest.TeamPaymentEvent{TeamID: uuid.NewString(), SeasonYear: 2026, OccurredAt: time.Now()}
}

func TestRegister_SubscribesBothTopics(t *testing.T) {
	h := NewTeamLifecycleHandler(&fakeEnrollment{}, nil, logger.Discard())
	regs := registrations{}
	h.Register(regs)

	assert.Contains(t, regs, "contest.team.payment_approved")
	assert.Contains(t, regs, "contest.team.payment_reversed")
}

func TestPaymentApproved_Enrolls(t *testing.T) {
	fake := &fakeEnrollment{}
	rec := outcomes{}
	h := NewTeamLifecycleHandler(fake, rec, logger.Discard())
	e := validEvent()

	require.NoError(t, h.HandlePaymentApproved(eventMessage(t, e)))
	assert.Equal(t, []string{e.TeamID}, fake.enrolled)
	assert.Equal(t, 1, rec["contest.team.payment_approved/applied"])
}

func TestPaymentReversed_Unenrolls(t *testing.T) {
	fake := &fakeEnrollment{}
	h := NewTeamLifecycleHandler(fake, nil, logger.Discard())
	e := validEvent()
	e.Reason = "refund"

	require.NoError(t, h.HandlePaymentReversed(eventMessage(t, e)))
	assert.Equal(t, []string{e.TeamID}, fake.unenrolled)
}

func TestMalformedPayloadIsAcked(t *testing.T) {
	fake := &fakeEnrollment{}
	rec := outcomes{}
	h := NewTeamLifecycleHandler(fake, rec, logger.Discard())

	require.NoError(t, h.HandlePaymentApproved(message.NewMessage(uuid.NewString(), []byte("{not json"))))
	require.NoError(t, h.HandlePaymentApproved(eventMessage(t, contest.TeamPaymentEvent{TeamID: "nope", SeasonYear: 2026})))

	assert.Empty(t, fake.enrolled)
	assert.Equal(t, 2, rec["contest.team.payment_approved/rejected"])
}

func TestUnknownTeamIsAcked(t *testing.T) {
	fake := &fakeEnrollment{
		EnrollFunc: func(context.Context, string, int) (*command.EnrollTeamResult, error) {
			return nil, shared.ErrTeamNotFound
		},
	}
	rec := outcomes{}
	h := NewTeamLifecycleHandler(fake, rec, logger.Discard())

	require.NoError(t, h.HandlePaymentApproved(eventMessage(t, validEvent())))
	assert.Equal(t, 1, rec["contest.team.payment_approved/skipped"])
}

func TestStoreFailureIsReturnedForRedelivery(t *testing.T) {
	down := shared.StoreError("leaderboard", "RemoveEnrollment", errors.New("connection refused"))
	fake := &fakeEnrollment{
		UnenrollFunc: func(context.Context, string, int) (*command.UnenrollTeamResult, error) {
			return nil, down
		},
	}
	rec := outcomes{}
	h := NewTeamLifecycleHandler(fake, rec, logger.Discard())

	err := h.HandlePaymentReversed(eventMessage(t, validEvent()))
	require.Error(t, err)
	assert.True(t, shared.IsStoreUnavailable(err))
	assert.Equal(t, 1, rec["contest.team.payment_reversed/failed"])
}
