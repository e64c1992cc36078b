package services

import (
	"log"
	"sync"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

// SweepInterval is how often expired conversations are purged.
const SweepInterval = 5 * time.Minute

const sessionExpiredNotice = "⏱️ A sua conversa expirou por inatividade. Envie uma nova mensagem para começar de novo."

// SessionStore holds in-progress conversations and pending location
// requests, both keyed by channel address and bound to the 30-minute TTL.
// It is an owned instance passed into the orchestrator, not a process-wide
// singleton, so tests can build isolated stores.
type SessionStore struct {
	transport Transport // best-effort expiry notices; may be nil in tests

	mu       sync.Mutex
	sessions map[string]*models.ConversationSession
	pending  map[string]*models.PendingLocationRequest
	locks    map[string]*sync.Mutex

	now func() time.Time
}

// NewSessionStore creates an empty store. The transport is used only for
// best-effort "session expired" notices during sweeps.
func NewSessionStore(transport Transport) *SessionStore {
	return &SessionStore{
		transport: transport,
		sessions:  make(map[string]*models.ConversationSession),
		pending:   make(map[string]*models.PendingLocationRequest),
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// WithAddressLock serializes read-modify-write access to one address. Two
// near-simultaneous inbound messages from the same address must never race
// on the same session; messages from different addresses proceed in
// parallel.
func (s *SessionStore) WithAddressLock(address string, fn func()) {
	s.mu.Lock()
	lock, exists := s.locks[address]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[address] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	fn()
}

// Get returns the live session for an address. Expired sessions are deleted
// transparently and read as absent.
func (s *SessionStore) Get(address string) *models.ConversationSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[address]
	if !exists {
		return nil
	}
	if session.Expired(s.now()) {
		delete(s.sessions, address)
		return nil
	}
	return session
}

// Put stores a session, displacing any pending location request for the
// same address (the two are mutually exclusive).
func (s *SessionStore) Put(session *models.ConversationSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.Touch(s.now())
	s.sessions[session.Address] = session
	delete(s.pending, session.Address)
}

// Delete removes the session for an address, if any.
func (s *SessionStore) Delete(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, address)
}

// GetPending returns the live pending location request for an address,
// deleting it transparently when expired.
func (s *SessionStore) GetPending(address string) *models.PendingLocationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, exists := s.pending[address]
	if !exists {
		return nil
	}
	if request.Expired(s.now()) {
		delete(s.pending, address)
		return nil
	}
	return request
}

// PutPending stores a pending location request, displacing any session for
// the same address.
func (s *SessionStore) PutPending(request *models.PendingLocationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request.CreatedAt = s.now()
	s.pending[request.Address] = request
	delete(s.sessions, request.Address)
}

// DeletePending removes the pending location request for an address.
func (s *SessionStore) DeletePending(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, address)
}

// ActiveSessions returns every live session, for the admin surface.
func (s *SessionStore) ActiveSessions() []*models.ConversationSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sessions := make([]*models.ConversationSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		if !session.Expired(now) {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// SweepExpired removes every expired session and pending location request
// and sends each swept address a best-effort expiry notice. Returns the
// number of entries removed.
func (s *SessionStore) SweepExpired() int {
	s.mu.Lock()
	now := s.now()

	var swept []string
	for address, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, address)
			swept = append(swept, address)
		}
	}
	for address, request := range s.pending {
		if request.Expired(now) {
			delete(s.pending, address)
			swept = append(swept, address)
		}
	}
	s.mu.Unlock()

	for _, address := range swept {
		if s.transport == nil {
			continue
		}
		if _, err := s.transport.Send(address, sessionExpiredNotice); err != nil {
			log.Printf("Failed to send session expired notice to %s: %v", address, err)
		}
		log.Printf("Cleaned up expired session for %s", address)
	}

	return len(swept)
}
