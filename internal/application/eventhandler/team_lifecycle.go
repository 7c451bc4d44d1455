// Package eventhandler contains handlers for domain events. They keep board
// membership in step with team payments arriving over the message bus.
package eventhandler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// TEAM LIFECYCLE HANDLER
// payment_approved enrolls the team on its overall board, payment_reversed
// removes it from every board of the season.
//
// Outcomes:
// - malformed payloads and unknown teams are acked and logged
// - store failures are returned so the bus retries and redelivers
// ═══════════════════════════════════════════════════════════════════════════

// Event outcomes reported to the recorder.
const (
	OutcomeApplied  = "applied"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Enrollment is the part of the engine the handler drives.
type Enrollment interface {
	EnrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.EnrollTeamResult, error)
	UnenrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.UnenrollTeamResult, error)
}

// Recorder receives event outcomes. *metrics.Manager implements it.
type Recorder interface {
	ObserveEvent(topic, outcome string)
}

// Registrar subscribes handlers to topics. *messaging.Bus implements it.
type Registrar interface {
	Handle(name, topic string, handler message.NoPublishHandlerFunc)
}

// TeamLifecycleHandler reacts to team payment events.
type TeamLifecycleHandler struct {
	enrollment Enrollment
	recorder   Recorder
	logger     *slog.Logger
}

// NewTeamLifecycleHandler creates a new handler. recorder may be nil.
func NewTeamLifecycleHandler(enrollment Enrollment, recorder Recorder, log *slog.Logger) *TeamLifecycleHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TeamLifecycleHandler{
		enrollment: enrollment,
		recorder:   recorder,
		logger:     log.With(logger.Component("team_lifecycle")),
	}
}

// Register subscribes the handler to both lifecycle topics.
func (h *TeamLifecycleHandler) Register(r Registrar) {
	r.Handle("enroll_on_payment_approved", shared.EventTeamPaymentApproved.String(), h.HandlePaymentApproved)
	r.Handle("unenroll_on_payment_reversed", shared.EventTeamPaymentReversed.String(), h.HandlePaymentReversed)
}

// HandlePaymentApproved enrolls the team.
func (h *TeamLifecycleHandler) HandlePaymentApproved(msg *message.Message) error {
	return h.handle(msg, shared.EventTeamPaymentApproved, func(ctx context.Context, e contest.TeamPaymentEvent) error {
		res, err := h.enrollment.EnrollTeam(ctx, e.TeamID, e.SeasonYear)
		if err != nil {
			return err
		}
		h.logger.InfoContext(ctx, "payment approved",
			logger.TeamID(e.TeamID),
			slog.Bool("created", res.Created),
			slog.Int("rank", int(res.Entry.Rank)),
		)
		return nil
	})
}

// HandlePaymentReversed unenrolls the team.
func (h *TeamLifecycleHandler) HandlePaymentReversed(msg *message.Message) error {
	return h.handle(msg, shared.EventTeamPaymentReversed, func(ctx context.Context, e contest.TeamPaymentEvent) error {
		res, err := h.enrollment.UnenrollTeam(ctx, e.TeamID, e.SeasonYear)
		if err != nil {
			return err
		}
		h.logger.InfoContext(ctx, "payment reversed",
			logger.TeamID(e.TeamID),
			slog.String("reason", e.Reason),
			slog.Int("boards", len(res.Removed)),
		)
		return nil
	})
}

func (h *TeamLifecycleHandler) handle(msg *message.Message, topic shared.EventType, apply func(context.Context, contest.TeamPaymentEvent) error) error {
	ctx := msg.Context()
	log := h.logger.With(slog.String("topic", topic.String()), slog.String("message_id", msg.UUID))

	var event contest.TeamPaymentEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.WarnContext(ctx, "dropping malformed event", logger.Err(err))
		h.observe(topic, OutcomeRejected)
		return nil
	}
	if err := event.Validate(); err != nil {
		log.WarnContext(ctx, "dropping invalid event", logger.Err(err))
		h.observe(topic, OutcomeRejected)
		return nil
	}

	err := apply(ctx, event)
	switch {
	case err == nil:
		h.observe(topic, OutcomeApplied)
		return nil
	case shared.IsNotFound(err), shared.IsValidation(err):
		log.WarnContext(ctx, "event skipped", logger.TeamID(event.TeamID), logger.Err(err))
		h.observe(topic, OutcomeSkipped)
		return nil
	default:
		log.ErrorContext(ctx, "event handling failed", logger.TeamID(event.TeamID), logger.Err(err))
		h.observe(topic, OutcomeFailed)
		return err
	}
}

func (h *TeamLifecycleHandler) observe(topic shared.EventType, outcome string) {
	if h.recorder != nil {
		h.recorder.ObserveEvent(topic.String(), outcome)
	}
}
