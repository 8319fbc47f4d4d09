package application

import (
	"context"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/AzielCF/az-post/pkg/msgworker"
	"github.com/sirupsen/logrus"
)

// Handler processes one inbound event.
type Handler interface {
	Handle(ctx context.Context, ev domain.InboundEvent) error
}

// Ingress queues inbound events so that each conversation is handled in arrival order
// while channel webhooks return immediately.
type Ingress struct {
	pool    *msgworker.Pool
	handler Handler
}

func NewIngress(pool *msgworker.Pool, handler Handler) *Ingress {
	return &Ingress{pool: pool, handler: handler}
}

// Submit reports false when the event was dropped because the conversation's queue is full.
func (i *Ingress) Submit(ev domain.InboundEvent) bool {
	ok := i.pool.TryDispatch(msgworker.Job{
		Channel:        ev.Channel,
		ConversationID: ev.ConversationID,
		Handler: func(ctx context.Context) error {
			return i.handler.Handle(ctx, ev)
		},
	})
	if !ok {
		logrus.Warnf("[INGRESS] dropped %s message from %s", ev.Channel, ev.ConversationID)
	}
	return ok
}
