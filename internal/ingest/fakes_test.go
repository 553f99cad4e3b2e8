package ingest_test

import (
	"context"
	"sync"

	"procodus.dev/vitals/internal/feed"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/vitals"
)

type fakeStore struct {
	err  error
	rows []store.Reading
	mu   sync.Mutex
}

func (f *fakeStore) InsertReading(_ context.Context, r *store.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, *r)
	return nil
}

func (f *fakeStore) Rows() []store.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Reading(nil), f.rows...)
}

type fakeCache struct {
	err  error
	puts []vitals.Reading
}

func (f *fakeCache) Put(_ context.Context, r vitals.Reading) error {
	f.puts = append(f.puts, r)
	return f.err
}

func (f *fakeCache) All(context.Context) ([]vitals.Reading, error) {
	return f.puts, f.err
}

type fakePublisher struct {
	err    error
	events []feed.Event
}

func (f *fakePublisher) Publish(_ context.Context, e feed.Event) error {
	f.events = append(f.events, e)
	return f.err
}
