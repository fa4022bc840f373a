package jsbridge

import (
	"math"
	"sync"
	"sync/atomic"
)

// HandleStore keeps the registration-time data (candidate lists, instance tables)
// that host callbacks recover by id.
type HandleStore struct {
	handles sync.Map     // map[int32]interface{}
	nextID  atomic.Int32 // atomic ID generation to avoid locks
}

// NewHandleStore creates a new handle store
func NewHandleStore() *HandleStore {
	hs := &HandleStore{}
	hs.nextID.Store(0) // 0 is reserved as invalid
	return hs
}

// Store stores a value and returns its id.
func (hs *HandleStore) Store(value interface{}) int32 {
	id := hs.nextID.Add(1)

	if id <= 0 || id == math.MaxInt32 {
		panic("jsbridge: HandleStore ID overflow, too many functions registered")
	}

	hs.handles.Store(id, value)
	return id
}

// Load loads value by ID
func (hs *HandleStore) Load(id int32) (interface{}, bool) {
	return hs.handles.Load(id)
}

// Delete deletes the value stored under id.
func (hs *HandleStore) Delete(id int32) bool {
	_, ok := hs.handles.LoadAndDelete(id)
	return ok
}

// Clear clears all handles (called on Env.Close)
func (hs *HandleStore) Clear() {
	hs.handles.Range(func(key, _ interface{}) bool {
		hs.handles.Delete(key)
		return true
	})
}

// Count returns number of stored handles (for debugging)
func (hs *HandleStore) Count() int {
	count := 0
	hs.handles.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
