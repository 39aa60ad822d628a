package access

import (
	"context"
	"errors"
	"sync"

	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

type fakeCollab struct {
	entities     []Entity
	entitlements map[uint][]Entitlement
	cards        map[uint][]CardBinding
	listErr      error
	readErr      map[uint]error
}

func (f *fakeCollab) Entities(context.Context) ([]Entity, error) {
	return f.entities, f.listErr
}

func (f *fakeCollab) Entitlements(_ context.Context, id uint) ([]Entitlement, error) {
	if err := f.readErr[id]; err != nil {
		return nil, err
	}
	return f.entitlements[id], nil
}

func (f *fakeCollab) Cards(_ context.Context, id uint) ([]CardBinding, error) {
	return f.cards[id], nil
}

type setCall struct {
	kind protocol.DataKind
	id   uint32
	rec  *protocol.Subscriber
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []setCall
	fail  map[uint32]error
}

func (w *fakeWriter) Set(kind protocol.DataKind, id uint32, r protocol.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail[id]; err != nil {
		return err
	}
	w.calls = append(w.calls, setCall{kind: kind, id: id, rec: r.(*protocol.Subscriber)})
	return nil
}

func (w *fakeWriter) ids() []uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint32, len(w.calls))
	for i, c := range w.calls {
		out[i] = c.id
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

var errBilling = errors.New("billing unavailable")
