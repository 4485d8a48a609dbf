package netaudio

import (
	"context"
	"sync"
)

// Request is one client's pending network-audio job: the uploaded PCM
// plus a label for logging, sitting in the rendezvous slot until the
// listening state machine picks it up.
type Request struct {
	PCM         []byte
	ClientLabel string
}

// Result is what the state machine hands back after running the
// request through recognition, dispatch, and TTS.
type Result struct {
	WAV []byte
}

// RendezvousSlot is the single shared slot described in spec §3: "at
// most one request is in flight at any moment; overflow submissions are
// rejected with a busy synthesized reply." One mutex-guarded struct
// plays the role the source's global mutex+condvar pair played.
type RendezvousSlot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready bool
	inUse bool

	request Request
	result  Result
	done    bool
}

// NewRendezvousSlot returns an empty, unoccupied slot.
func NewRendezvousSlot() *RendezvousSlot {
	s := &RendezvousSlot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// TrySubmit places req in the slot and signals waiters, unless a request
// is already in flight, in which case it returns false (spec: "overflow
// submissions are rejected with a busy synthesized reply").
func (s *RendezvousSlot) TrySubmit(req Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse {
		return false
	}
	s.inUse = true
	s.ready = true
	s.done = false
	s.request = req
	s.cond.Broadcast()
	return true
}

// WaitForRequest blocks until a request is ready=true, or ctx is
// cancelled, and returns it. Call Complete once the result is ready.
func (s *RendezvousSlot) WaitForRequest(ctx context.Context) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for !s.ready {
		if ctx.Err() != nil {
			return Request{}, false
		}
		s.cond.Wait()
	}

	s.ready = false
	return s.request, true
}

// Complete delivers the state machine's result and wakes the gateway
// goroutine blocked in Await.
func (s *RendezvousSlot) Complete(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.done = true
	s.cond.Broadcast()
}

// Await blocks (up to ctx's deadline) for Complete, then frees the slot
// for the next submission (spec: "ownership transfer" — the caller now
// owns result.WAV).
func (s *RendezvousSlot) Await(ctx context.Context) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for !s.done {
		if ctx.Err() != nil {
			s.inUse = false
			s.ready = false
			return Result{}, false
		}
		s.cond.Wait()
	}

	result := s.result
	s.inUse = false
	s.done = false
	return result, true
}

// TryTakeRequest is a non-blocking variant of WaitForRequest for callers
// that poll the slot from inside a larger control loop (the listening
// state machine's main iteration, spec §4.7) rather than dedicating a
// goroutine to WaitForRequest.
func (s *RendezvousSlot) TryTakeRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Request{}, false
	}
	s.ready = false
	return s.request, true
}

// Occupied reports whether a request is currently in flight, without
// blocking.
func (s *RendezvousSlot) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}
