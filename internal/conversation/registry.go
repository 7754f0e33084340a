package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry holds the open conversations of this process and evicts the
// ones nobody has touched within the idle TTL.
type Registry struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Controller
	idleTTL       time.Duration
	log           logrus.FieldLogger
	stopChan      chan struct{}
	stopOnce      sync.Once
}

func NewRegistry(idleTTL time.Duration, log logrus.FieldLogger) *Registry {
	return &Registry{
		conversations: make(map[uuid.UUID]*Controller),
		idleTTL:       idleTTL,
		log:           log,
		stopChan:      make(chan struct{}),
	}
}

func (r *Registry) Add(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[c.ID()] = c
}

func (r *Registry) Get(id uuid.UUID) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	return c, ok
}

// Remove closes and forgets the conversation. It reports whether it existed.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	c, ok := r.conversations[id]
	delete(r.conversations, id)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

// StartReaper evicts idle conversations every interval until Stop.
func (r *Registry) StartReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case now := <-ticker.C:
				if n := r.reapIdle(now); n > 0 {
					r.log.WithField("evicted", n).Info("Evicted idle conversations")
				}
			}
		}
	}()
}

// Stop ends the reaper and closes every open conversation.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })

	r.mu.Lock()
	open := r.conversations
	r.conversations = make(map[uuid.UUID]*Controller)
	r.mu.Unlock()

	for _, c := range open {
		c.Close()
	}
}

func (r *Registry) reapIdle(now time.Time) int {
	var idle []*Controller

	r.mu.Lock()
	for id, c := range r.conversations {
		if now.Sub(c.LastActive()) > r.idleTTL {
			idle = append(idle, c)
			delete(r.conversations, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	return len(idle)
}
