package store

import "context"

type notifier struct {
	ctx       context.Context
	ctxCancel func()
	modified  chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		modified: make(chan struct{}, 1),
	}
	n.ctx, n.ctxCancel = context.WithCancel(context.Background())
	return n
}

func (n *notifier) Modified() <-chan struct{} {
	return n.modified
}

// Notify coalesces notifications that were not consumed yet.
func (n *notifier) Notify() {
	select {
	case <-n.ctx.Done():
		return
	default:
	}
	select {
	case n.modified <- struct{}{}:
	default:
	}
}

func (n *notifier) Close() {
	n.ctxCancel()
}

func (n *notifier) Closed() <-chan struct{} {
	return n.ctx.Done()
}
