package pubsub

type SubscriptionHandler[T any] interface {
	Subscribe(chan<- T)
	Unsubscribe(chan<- T)
	Close()
}

type Publisher[T any] interface {
	SubscriptionHandler[T]
	Publish(data T)
}

type pubSub[T any] struct {
	subscriptions map[chan<- T]struct{}
	sub           chan chan<- T
	unsub         chan chan<- T
	pub           chan T
	stop          chan struct{}
	onDrop        func()
}

func NewPublisher[T any]() Publisher[T] {
	return newPubSub[T](nil)
}

// NewDroppingPublisher calls onDrop every time a subscriber was skipped
// because its channel was full.
func NewDroppingPublisher[T any](onDrop func()) Publisher[T] {
	return newPubSub[T](onDrop)
}

func newPubSub[T any](onDrop func()) *pubSub[T] {
	p := &pubSub[T]{
		subscriptions: make(map[chan<- T]struct{}),
		sub:           make(chan chan<- T),
		unsub:         make(chan chan<- T),
		pub:           make(chan T, 64),
		stop:          make(chan struct{}),
		onDrop:        onDrop,
	}
	go p.run()
	return p
}

func (p *pubSub[T]) run() {
	for {
		select {
		case data := <-p.pub:
			for sub := range p.subscriptions {
				// a slow subscriber must not hold back the others
				select {
				case sub <- data:
				default:
					if p.onDrop != nil {
						p.onDrop()
					}
				}
			}
		case ch := <-p.sub:
			p.subscriptions[ch] = struct{}{}
		case ch := <-p.unsub:
			delete(p.subscriptions, ch)
		case <-p.stop:
			return
		}
	}
}

func (p *pubSub[T]) Publish(data T) {
	select {
	case <-p.stop:
	case p.pub <- data:
	}
}

func (p *pubSub[T]) Subscribe(ch chan<- T) {
	select {
	case <-p.stop:
	case p.sub <- ch:
	}
}

func (p *pubSub[T]) Unsubscribe(ch chan<- T) {
	select {
	case <-p.stop:
	case p.unsub <- ch:
	}
}

func (p *pubSub[T]) Close() {
	close(p.stop)
}
