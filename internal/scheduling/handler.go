package scheduling

import (
	"context"
	"errors"
	"fmt"

	"shiftbot/internal/eventbus"
	"shiftbot/internal/router"
	logx "shiftbot/pkg/logx"
)

const (
	EventCardCreated = "card.created"
	EventCardFailed  = "card.failed"
)

// CardCreator creates one card per call and never retries.
type CardCreator interface {
	CreateCard(ctx context.Context, req CardRequest) (Card, error)
}

type Handler struct {
	cards CardCreator
	log   logx.Logger
	bus   eventbus.Bus
}

func NewHandler(cards CardCreator, log logx.Logger, bus eventbus.Bus) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{cards: cards, log: log, bus: bus}
}

// Respond returns the reply text for inv. Card failures are reported in
// the reply, not as an error; the error is reserved for invocations this
// handler cannot answer at all.
func (h *Handler) Respond(ctx context.Context, inv Invocation) (string, error) {
	switch v := inv.(type) {
	case Schedule:
		return h.schedule(ctx, v), nil
	case End:
		return ReplyEnd, nil
	case Edit:
		return editReply(v), nil
	case Cancel:
		return ReplyCancel, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownCommand, inv)
	}
}

func (h *Handler) schedule(ctx context.Context, s Schedule) string {
	req := NewCardRequest(s)
	log := h.log.With(logx.String("type", s.Type))
	if h.cards == nil {
		log.Error("card creation failed", logx.Err(errors.New("no card service configured")))
		eventbus.Publish(h.bus, EventCardFailed, s.Type)
		return ReplyCardFailed
	}
	card, err := h.cards.CreateCard(ctx, req)
	if err != nil {
		log.Error("card creation failed", logx.Err(err))
		eventbus.Publish(h.bus, EventCardFailed, s.Type)
		return ReplyCardFailed
	}
	log.Info("card created", logx.String("card_id", card.ID), logx.String("url", card.ShortURL))
	eventbus.Publish(h.bus, EventCardCreated, card)
	return scheduledReply(s, card)
}

// Routes binds every registered command to this handler.
func (h *Handler) Routes() []router.Command {
	specs := Commands()
	out := make([]router.Command, 0, len(specs))
	for _, spec := range specs {
		out = append(out, router.Command{Spec: spec, Handle: h.handle})
	}
	return out
}

func (h *Handler) handle(ctx context.Context, req *router.Request) error {
	inv, err := Parse(req.Command, req.Options())
	if err != nil {
		return err
	}
	text, err := h.Respond(ctx, inv)
	if err != nil {
		return err
	}
	return req.Reply(ctx, text)
}
