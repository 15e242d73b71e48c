package pubsub

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/nsepulse/pulse/internal/testutils"
	"github.com/stretchr/testify/assert"
)

func TestPubSub_Sub_Unsub(t *testing.T) {
	pubSub := NewPublisher[string]().(*pubSub[string])

	sub := make(chan string, 1)
	pubSub.Subscribe(sub)

	pubSub.Publish("nifty")
	var recv string
	testutils.WithTimeout(2*time.Second, func() {
		recv = <-sub
	})
	assert.Equal(t, "nifty", recv)

	pubSub.Unsubscribe(sub)
	pubSub.Publish("banknifty")
	select {
	case <-sub:
		t.Fatal("unsubscribed channel received data")
	case <-time.After(100 * time.Millisecond):
	}

	pubSub.Close()
	sub2 := make(chan string, 1)
	pubSub.Subscribe(sub2)
	pubSub.Publish("closed")
	select {
	case <-sub2:
		t.Fatal("closed publisher delivered data")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPubSub_SlowSubscriber(t *testing.T) {
	var dropped atomic.Int32
	p := NewDroppingPublisher[int](func() { dropped.Add(1) })
	defer p.Close()

	slow := make(chan int)
	fast := make(chan int, 3)
	p.Subscribe(slow)
	p.Subscribe(fast)

	p.Publish(1)
	p.Publish(2)
	p.Publish(3)

	testutils.WithTimeout(2*time.Second, func() {
		assert.Equal(t, 1, <-fast)
		assert.Equal(t, 2, <-fast)
		assert.Equal(t, 3, <-fast)
	})
	testutils.WaitUntil(2*time.Second, func() bool {
		return dropped.Load() == 3
	})
}

func TestPubSub_Multiple(t *testing.T) {
	p := NewPublisher[int]()
	defer p.Close()

	subs := []chan int{make(chan int, 1), make(chan int, 1), make(chan int, 1)}
	for _, s := range subs {
		p.Subscribe(s)
	}
	p.Publish(42)
	testutils.WithTimeout(2*time.Second, func() {
		for _, s := range subs {
			assert.Equal(t, 42, <-s)
		}
	})
}
