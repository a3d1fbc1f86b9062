package printer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Notification
}

func (r *recorder) record(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recorder) take() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func newTestPoller(d Discoverer, rec *recorder) *PollingNotifier {
	p := NewPollingNotifier(d, time.Hour, nil)
	// Registered directly so no background loop runs
	p.subs[0] = subscription{kind: AccessoryConnected, fn: rec.record}
	p.subs[1] = subscription{kind: AccessoryDisconnected, fn: rec.record}
	return p
}

func TestPollFirstScanSeeds(t *testing.T) {
	rec := &recorder{}
	p := newTestPoller(&fakeDiscoverer{list: []Accessory{zebra, other}}, rec)

	p.Poll(context.Background())
	assert.Empty(t, rec.take())

	p.Poll(context.Background())
	assert.Empty(t, rec.take(), "unchanged set yields nothing")
}

func TestPollDiff(t *testing.T) {
	rec := &recorder{}
	d := &fakeDiscoverer{list: []Accessory{other}}
	p := newTestPoller(d, rec)
	p.Poll(context.Background())

	d.set(other, zebra)
	p.Poll(context.Background())
	assert.Equal(t, []Notification{{Kind: AccessoryConnected, Accessory: zebra}}, rec.take())

	d.set(zebra)
	p.Poll(context.Background())
	assert.Equal(t, []Notification{{Kind: AccessoryDisconnected, Accessory: other}}, rec.take())

	d.set()
	p.Poll(context.Background())
	assert.Equal(t, []Notification{{Kind: AccessoryDisconnected, Accessory: zebra}}, rec.take())
}

func TestPollErrorKeepsState(t *testing.T) {
	rec := &recorder{}
	d := &fakeDiscoverer{list: []Accessory{zebra}}
	p := newTestPoller(d, rec)
	p.Poll(context.Background())

	d.mu.Lock()
	d.err = errors.New("enumeration failed")
	d.mu.Unlock()
	p.Poll(context.Background())
	assert.Empty(t, rec.take())

	d.mu.Lock()
	d.err = nil
	d.list = nil
	d.mu.Unlock()
	p.Poll(context.Background())
	assert.Equal(t, []Notification{{Kind: AccessoryDisconnected, Accessory: zebra}}, rec.take())
}

func TestPollKeyWithoutSerial(t *testing.T) {
	anon := Accessory{Name: "usb printer", Protocols: []string{ZebraRawPort}}
	assert.Equal(t, "name:usb printer", accessoryKey(anon))
	assert.Equal(t, zebra.SerialNumber, accessoryKey(zebra))
}

func TestPollingNotifierDrivesLinkManager(t *testing.T) {
	d := &fakeDiscoverer{}
	p := NewPollingNotifier(d, 10*time.Millisecond, nil)
	m := newTestLink(t, d, &fakeTransport{}, nil, LinkOptions{})

	states := make(chan ConnectionState, 4)
	m.OnStateChange(func(s ConnectionState) { states <- s })

	cancel, err := p.Subscribe(AccessoryConnected, m.handleConnected)
	require.NoError(t, err)
	defer cancel()

	// Let the first poll seed the empty set
	time.Sleep(50 * time.Millisecond)
	d.set(zebra)

	select {
	case s := <-states:
		assert.Equal(t, Connected, s)
	case <-time.After(5 * time.Second):
		t.Fatal("no connect notification")
	}
	assert.True(t, m.IsConnected())
}

func TestPollingStopsWithLastSubscription(t *testing.T) {
	p := NewPollingNotifier(&fakeDiscoverer{}, time.Hour, nil)

	c1, err := p.Subscribe(AccessoryConnected, func(Notification) {})
	require.NoError(t, err)
	c2, err := p.Subscribe(AccessoryDisconnected, func(Notification) {})
	require.NoError(t, err)

	c1()
	c1()
	p.mu.Lock()
	assert.NotNil(t, p.stop)
	p.mu.Unlock()

	c2()
	p.mu.Lock()
	assert.Nil(t, p.stop)
	assert.Empty(t, p.subs)
	p.mu.Unlock()
}

func TestPollingRestartReseeds(t *testing.T) {
	rec := &recorder{}
	d := &fakeDiscoverer{list: []Accessory{zebra}}
	p := NewPollingNotifier(d, time.Hour, nil)

	seeded := func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.seeded
	}

	cancel, err := p.Subscribe(AccessoryDisconnected, rec.record)
	require.NoError(t, err)
	require.Eventually(t, seeded, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.False(t, seeded())

	// The printer went away while nobody was listening
	d.set()
	cancel, err = p.Subscribe(AccessoryDisconnected, rec.record)
	require.NoError(t, err)
	defer cancel()
	require.Eventually(t, seeded, 5*time.Second, 5*time.Millisecond)

	assert.Empty(t, rec.take())
}

func TestPollAfterStopIsDiscarded(t *testing.T) {
	rec := &recorder{}
	p := newTestPoller(&fakeDiscoverer{list: []Accessory{zebra}}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Poll(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.False(t, p.seeded)
	assert.Nil(t, p.attached)
}
