package channelbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ConfirmationResponse is the decision an inline-button callback resolves
// a pending confirmation with (spec §3.6).
type ConfirmationResponse string

const (
	ResponseOnce   ConfirmationResponse = "once"
	ResponseAlways ConfirmationResponse = "always"
	ResponseReject ConfirmationResponse = "reject"
)

// ConfirmationRecord is the process-memory-only entry tracked per pending
// inline-button request (spec §3.6). It is never persisted: a restart
// loses pending confirmations by design.
type ConfirmationRecord struct {
	RequestID       string
	PermissionLabel string
	CreatedAt       time.Time
}

// ConfirmationRegistry is the process-wide `request_id -> one-shot
// responder` map described in spec §4.8. Grounded on a tool-call approval
// manager's pending-map-plus-buffered-channel shape: Create registers a
// request and returns an awaitable channel; Respond performs a
// non-blocking send so a slow or repeated callback never blocks the
// receiver task; Wait removes the entry once resolved or once its
// context is done.
type ConfirmationRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingConfirmation
}

type pendingConfirmation struct {
	record ConfirmationRecord
	ch     chan ConfirmationResponse
}

func NewConfirmationRegistry() *ConfirmationRegistry {
	return &ConfirmationRegistry{pending: make(map[string]*pendingConfirmation)}
}

// Create registers a new pending confirmation and returns its record.
func (r *ConfirmationRegistry) Create(requestID, permissionLabel string) ConfirmationRecord {
	record := ConfirmationRecord{
		RequestID:       requestID,
		PermissionLabel: permissionLabel,
		CreatedAt:       time.Now(),
	}

	r.mu.Lock()
	r.pending[requestID] = &pendingConfirmation{
		record: record,
		ch:     make(chan ConfirmationResponse, 1),
	}
	r.mu.Unlock()

	return record
}

// Wait blocks until requestID's responder resolves or ctx is done,
// removing the entry in either case.
func (r *ConfirmationRegistry) Wait(ctx context.Context, requestID string) (ConfirmationResponse, error) {
	r.mu.Lock()
	entry, ok := r.pending[requestID]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("channelbus: no pending confirmation for %s", requestID)
	}

	select {
	case response := <-entry.ch:
		r.remove(requestID)
		return response, nil
	case <-ctx.Done():
		r.remove(requestID)
		return "", ctx.Err()
	}
}

// Respond resolves requestID's responder with response. It is a
// non-blocking send: a duplicate callback for an already-resolved
// request is silently ignored rather than blocking the caller.
func (r *ConfirmationRegistry) Respond(requestID string, response ConfirmationResponse) error {
	r.mu.Lock()
	entry, ok := r.pending[requestID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("channelbus: no pending confirmation for %s", requestID)
	}

	select {
	case entry.ch <- response:
	default:
	}
	return nil
}

// Lookup returns the ConfirmationRecord for requestID without resolving
// or removing it, for display purposes (e.g. re-rendering a card).
func (r *ConfirmationRegistry) Lookup(requestID string) (ConfirmationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[requestID]
	if !ok {
		return ConfirmationRecord{}, false
	}
	return entry.record, true
}

func (r *ConfirmationRegistry) remove(requestID string) {
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
}
