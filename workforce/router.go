package workforce

import (
	"fmt"

	"github.com/seoflow-ai/seoflow/agent"
	"github.com/seoflow-ai/seoflow/pkg/observability"
	"github.com/seoflow-ai/seoflow/proto"
)

// RouterID is the address of the workforce itself. Goal assignments are sent
// from it, and agents reply to it with status updates the router absorbs.
const RouterID = "workforce"

// RoutingError reports an unresolvable recipient. The message is dropped and
// the sender is notified; nothing is raised to unrelated callers.
type RoutingError struct {
	Recipient string
	Reason    string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("cannot route to %q: %s", e.Recipient, e.Reason)
}

// Route resolves the message's recipient and delivers it. Direct ids go to
// exactly one inbox, TYPE:<role> to every agent holding that role when the
// message is routed, ALL to every registered agent except the sender. Role
// and global membership is a snapshot taken at send time; registry changes
// after resolution do not alter the delivery set.
//
// Route also observes the task traffic passing through it and keeps the task
// tracker current.
func (w *Workforce) Route(msg *proto.Message) error {
	if msg == nil {
		return &RoutingError{Reason: "nil message"}
	}

	recipient, err := proto.ParseRecipient(msg.Header.RecipientID)
	if err != nil {
		return w.routingFailure(msg, err.Error())
	}

	var targets []*agent.Agent
	var kind string
	switch recipient.Kind {
	case proto.RecipientDirect:
		kind = "direct"
		if recipient.ID == RouterID {
			// Addressed to the workforce itself: absorb after updating the
			// task tracker. Nothing is delivered to an inbox.
			w.tasks.observe(msg, nil)
			observability.RecordMessageRouted(string(msg.Header.Type))
			return nil
		}
		a, ok := w.Get(recipient.ID)
		if !ok {
			return w.routingFailure(msg, fmt.Sprintf("agent %s not registered", recipient.ID))
		}
		targets = []*agent.Agent{a}

	case proto.RecipientRole:
		kind = "role"
		targets = w.byRole(recipient.Role)
		if len(targets) == 0 {
			return w.routingFailure(msg, fmt.Sprintf("no agents with role %s", recipient.Role))
		}

	case proto.RecipientGlobal:
		kind = "global"
		for _, a := range w.snapshot() {
			if a.ID() != msg.Header.SenderID {
				targets = append(targets, a)
			}
		}
		if len(targets) == 0 {
			return w.routingFailure(msg, "no agents registered besides the sender")
		}
	}

	w.tasks.observe(msg, targets)
	observability.RecordMessageRouted(string(msg.Header.Type))

	for _, target := range targets {
		if err := target.Enqueue(msg); err != nil {
			// Delivery failure is the one status transition the router owns.
			target.SetStatus(agent.StatusOffline)
			observability.RecordMessageDropped("delivery_failed")
			w.logger.Error("delivery failed, agent marked offline",
				"agent", target.Name(), "message", msg.Header.MessageID, "error", err)
			continue
		}
		observability.RecordDelivery(kind)
	}
	return nil
}

// routingFailure drops the message, notifies the sender with an ERROR_REPORT
// and returns the *RoutingError.
func (w *Workforce) routingFailure(msg *proto.Message, reason string) error {
	rerr := &RoutingError{Recipient: msg.Header.RecipientID, Reason: reason}
	observability.RecordMessageDropped("unresolvable_recipient")
	w.logger.Warn("message dropped",
		"message", msg.Header.MessageID, "recipient", msg.Header.RecipientID, "reason", reason)

	sender, ok := w.Get(msg.Header.SenderID)
	if !ok {
		// External senders get the error as the return value only.
		return rerr
	}
	report, err := proto.Build(RouterID, sender.ID(), proto.TypeErrorReport, proto.ErrorReportPayload{
		Code:         "ROUTING_FAILED",
		Detail:       rerr.Error(),
		RefMessageID: msg.Header.MessageID,
	})
	if err != nil {
		w.logger.Error("could not build routing error report", "error", err)
		return rerr
	}
	if err := sender.Enqueue(report); err != nil {
		w.logger.Error("could not notify sender of routing failure",
			"sender", sender.Name(), "error", err)
	}
	return rerr
}
