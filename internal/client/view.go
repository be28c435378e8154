package client

import (
	"context"
	"sync"

	"github.com/pavelanni/rollcall/internal/model"
)

// ClassData is everything a class page shows.
type ClassData struct {
	Class      model.Class
	Students   []model.Student
	Statistics model.Snapshot
}

// ClassView holds the loaded state of one class. It only talks to the
// server on the first Get, after Invalidate, or on Refresh, so every screen
// reading the view sees the same data.
type ClassView struct {
	client  *Client
	classID string

	mu    sync.Mutex
	data  ClassData
	valid bool
}

// NewClassView creates an empty view of classID.
func NewClassView(c *Client, classID string) *ClassView {
	return &ClassView{client: c, classID: classID}
}

// ClassID returns the class the view shows.
func (v *ClassView) ClassID() string { return v.classID }

// Get returns the loaded data, loading it first if needed.
func (v *ClassView) Get(ctx context.Context) (ClassData, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.valid {
		return v.data, nil
	}
	return v.load(ctx)
}

// Refresh reloads the data from the server.
func (v *ClassView) Refresh(ctx context.Context) (ClassData, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.load(ctx)
}

// Invalidate marks the data stale. Call it after any mutation of the class.
func (v *ClassView) Invalidate() {
	v.mu.Lock()
	v.valid = false
	v.mu.Unlock()
}

// load fetches class, roster and statistics. On failure the previous data
// is kept unchanged. v.mu must be held.
func (v *ClassView) load(ctx context.Context) (ClassData, error) {
	class, err := v.client.GetClass(ctx, v.classID)
	if err != nil {
		return v.data, err
	}
	students, err := v.client.ListStudents(ctx, v.classID)
	if err != nil {
		return v.data, err
	}
	snap, err := v.client.Statistics(ctx, v.classID)
	if err != nil {
		return v.data, err
	}
	v.data = ClassData{Class: class, Students: students, Statistics: snap}
	v.valid = true
	return v.data, nil
}
