package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rzpsarthak13/unistore/internal/core"
)

func TestDispatcherRoutesByStore(t *testing.T) {
	d := NewDispatcher()
	var stGot, otherGot []Event
	d.Subscribe("st", func(e Event) { stGot = append(stGot, e) })
	d.Subscribe("other", func(e Event) { otherGot = append(otherGot, e) })

	d.Publish([]Event{
		{Type: core.EventCreated, Store: "st", Key: 1.0, Time: time.Now()},
		{Type: core.EventDeleted, Store: "other", Time: time.Now()},
		{Type: core.EventUpdated, Store: "st", Key: 2.0, Time: time.Now()},
	})

	assert.Len(t, stGot, 2)
	assert.Len(t, otherGot, 1)
	assert.Equal(t, core.EventCreated, stGot[0].Type)
	assert.Equal(t, core.EventUpdated, stGot[1].Type)
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	n := 0
	off := d.Subscribe("st", func(Event) { n++ })
	d.Publish([]Event{{Type: core.EventCreated, Store: "st"}})
	off()
	d.Publish([]Event{{Type: core.EventCreated, Store: "st"}})
	assert.Equal(t, 1, n)
}

func TestDispatcherEmptyPublish(t *testing.T) {
	d := NewDispatcher()
	d.Publish(nil)
	d.Publish([]Event{})
}
