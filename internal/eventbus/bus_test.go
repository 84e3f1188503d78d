package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(4)

	bus.PublishNew(TypeTaskCreated, "TASK-1", "created", map[string]string{"status": "CREATED"})

	ev := <-ch
	require.NotNil(t, ev)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, TypeTaskCreated, ev.Type)
	assert.Equal(t, "TASK-1", ev.ResourceID)
	assert.Equal(t, "CREATED", ev.Metadata["status"])

	bus.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	bus.Unsubscribe(id)
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := New()
	_, ch := bus.Subscribe(1)
	bus.PublishNew(TypeTaskCreated, "TASK-1", "", nil)
	bus.PublishNew(TypeTaskCreated, "TASK-2", "", nil)

	ev := <-ch
	assert.Equal(t, "TASK-1", ev.ResourceID)
	assert.Empty(t, ch)
}
