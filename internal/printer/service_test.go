package printer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zebra-print/internal/cpcl"
)

func TestPrintBarcodeWritesDemoLabel(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestLink(t, &fakeDiscoverer{list: []Accessory{zebra}}, tr, nil, LinkOptions{})
	s := NewService(m, nil)

	require.NoError(t, s.PrintBarcode(context.Background(), "ignored"))

	want := string(cpcl.Render(cpcl.DemoPart.Label()))
	assert.Equal(t, want, tr.written())
	assert.Contains(t, tr.written(), "BARCODE 128 2 1 50 30 50 4121001245256325233542 \n")
}

func TestPrintBarcodeIgnoresContent(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestLink(t, &fakeDiscoverer{list: []Accessory{zebra}}, tr, nil, LinkOptions{})
	s := NewService(m, nil)

	require.NoError(t, s.PrintBarcode(context.Background(), "first"))
	first := tr.written()
	require.NoError(t, s.PrintBarcode(context.Background(), "second"))

	assert.Equal(t, first+first, tr.written())
}

func TestPrintLabelNotConnected(t *testing.T) {
	m := newTestLink(t, &fakeDiscoverer{}, &fakeTransport{}, nil, LinkOptions{})
	s := NewService(m, nil)

	err := s.PrintLabel(context.Background(), cpcl.DemoPart.Label())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPrintLabelUnencodable(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestLink(t, &fakeDiscoverer{list: []Accessory{zebra}}, tr, nil, LinkOptions{})
	s := NewService(m, nil)

	label := cpcl.NewLabel(cpcl.TextField{Font: 4, Content: "部品"})
	err := s.PrintLabel(context.Background(), label)

	assert.ErrorIs(t, err, cpcl.ErrUnencodable)
	assert.Empty(t, tr.written())
	assert.True(t, m.IsConnected())
}

func TestConcurrentPrintsDoNotInterleave(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestLink(t, &fakeDiscoverer{list: []Accessory{zebra}}, tr, nil, LinkOptions{})
	s := NewService(m, nil)

	doc := string(cpcl.Render(cpcl.DemoPart.Label()))

	const workers = 4
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.PrintBarcode(context.Background(), "This is a test"))
		}()
	}
	wg.Wait()

	got := tr.written()
	require.Len(t, got, workers*len(doc))
	for i := 0; i < workers; i++ {
		assert.Equal(t, doc, got[i*len(doc):(i+1)*len(doc)])
	}
}

func TestPrintAsync(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestLink(t, &fakeDiscoverer{list: []Accessory{zebra}}, tr, nil, LinkOptions{})
	s := NewService(m, nil)

	done := make(chan error, 1)
	s.PrintAsync(cpcl.DemoPart.Label(), func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("print did not complete")
	}
	assert.Equal(t, string(cpcl.Render(cpcl.DemoPart.Label())), tr.written())
}
