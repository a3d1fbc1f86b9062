package printer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollingNotifier turns periodic scans into accessory notifications for
// platforms without a hotplug signal. The first scan only records the
// attached set.
type PollingNotifier struct {
	discoverer Discoverer
	interval   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	subs     map[int]subscription
	nextID   int
	stop     context.CancelFunc
	attached map[string]Accessory
	seeded   bool
}

type subscription struct {
	kind EventKind
	fn   func(Notification)
}

// NewPollingNotifier creates a notifier that rescans every interval
func NewPollingNotifier(discoverer Discoverer, interval time.Duration, logger *zap.Logger) *PollingNotifier {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingNotifier{
		discoverer: discoverer,
		interval:   interval,
		logger:     logger.With(zap.String("component", "poll")),
		subs:       make(map[int]subscription),
	}
}

// Subscribe registers fn for kind. Polling runs while at least one
// subscription exists.
func (p *PollingNotifier) Subscribe(kind EventKind, fn func(Notification)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.subs[id] = subscription{kind: kind, fn: fn}

	if p.stop == nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.stop = cancel
		go p.run(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() { p.unsubscribe(id) })
	}, nil
}

func (p *PollingNotifier) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.subs, id)
	if len(p.subs) == 0 && p.stop != nil {
		p.stop()
		p.stop = nil
		p.attached = nil
		p.seeded = false
	}
}

func (p *PollingNotifier) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll scans once and delivers notifications for accessories that appeared
// or vanished since the previous scan.
func (p *PollingNotifier) Poll(ctx context.Context) {
	list, err := p.discoverer.Accessories(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("Accessory poll failed", zap.Error(err))
		}
		return
	}

	current := make(map[string]Accessory, len(list))
	for _, a := range list {
		current[accessoryKey(a)] = a
	}

	p.mu.Lock()
	if ctx.Err() != nil {
		// Polling stopped while scanning
		p.mu.Unlock()
		return
	}
	var events []Notification
	if p.seeded {
		for _, a := range list {
			if _, ok := p.attached[accessoryKey(a)]; !ok {
				events = append(events, Notification{Kind: AccessoryConnected, Accessory: a})
			}
		}
		for key, a := range p.attached {
			if _, ok := current[key]; !ok {
				events = append(events, Notification{Kind: AccessoryDisconnected, Accessory: a})
			}
		}
	}
	p.attached = current
	p.seeded = true

	subs := make([]subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, ev := range events {
		p.logger.Debug("Accessory change detected",
			zap.Stringer("kind", ev.Kind),
			zap.Stringer("accessory", ev.Accessory),
		)
		for _, s := range subs {
			if s.kind == ev.Kind {
				s.fn(ev)
			}
		}
	}
}

func accessoryKey(a Accessory) string {
	if a.SerialNumber != "" {
		return a.SerialNumber
	}
	return "name:" + a.Name
}
