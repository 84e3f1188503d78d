package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/taskcrew/internal/eventbus"
	"github.com/kazz187/taskcrew/internal/task"
)

// Dispatcher tells the managers when a task is waiting for review.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if payload := reviewDue(event); payload != nil {
				d.sender.SendToAll(ctx, payload)
			}
		}
	}
}

// reviewDue builds the notification for events that leave a task waiting on
// a manager, and nil for everything else.
func reviewDue(event *eventbus.Event) *NotificationPayload {
	if event.Type != eventbus.TypeTaskStatusChanged {
		return nil
	}
	var verdict string
	switch task.Status(event.Metadata["status"]) {
	case task.StatusTestPassed:
		verdict = "passed"
	case task.StatusTestFailed:
		verdict = "failed"
	default:
		return nil
	}
	return &NotificationPayload{
		Title: "Review due",
		Body:  fmt.Sprintf("%s %s testing (by %s)", event.ResourceID, verdict, event.Metadata["actor"]),
		URL:   "/api/agents/manager/review_task",
		Tag:   event.ResourceID,
	}
}
