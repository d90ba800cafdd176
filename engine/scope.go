package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/storagepart"
)

type scopeFailure struct {
	err error
}

// Scope is one independently committed group of parts: the catalog scope
// or an entity index scope.
type Scope struct {
	catalog *Catalog
	ref     entity.ScopeRef

	writer  chan struct{}
	current atomic.Pointer[Snapshot]
	failure atomic.Pointer[scopeFailure]
}

func newScope(c *Catalog, ref entity.ScopeRef) *Scope {
	s := &Scope{catalog: c, ref: ref, writer: make(chan struct{}, 1)}
	s.current.Store(newSnapshot(s, 0, nil))
	return s
}

// ID returns the scope id. The catalog scope has id 0.
func (s *Scope) ID() int32 { return s.ref.ScopeID }

// IsCatalog reports whether s is the catalog scope.
func (s *Scope) IsCatalog() bool { return s.ref.ScopeID == storagepart.CatalogScope }

// EntityType returns the entity collection of an entity scope.
func (s *Scope) EntityType() string { return s.ref.EntityType }

// Discriminator returns the discriminator of an entity scope.
func (s *Scope) Discriminator() entity.Discriminator { return s.ref.Discriminator }

func (s *Scope) String() string {
	if s.IsCatalog() {
		return "catalog"
	}
	return fmt.Sprintf("%d(%s %s)", s.ref.ScopeID, s.ref.EntityType, s.ref.Discriminator)
}

func (s *Scope) partID(t storagepart.Type, keyID int32) storagepart.ID {
	return storagepart.ID{Type: t, PK: storagepart.ComputePK(s.ref.ScopeID, keyID)}
}

// Err returns the failure that made the scope unusable, if any.
func (s *Scope) Err() error {
	if f := s.failure.Load(); f != nil {
		return f.err
	}
	return nil
}

func (s *Scope) usable() error {
	if f := s.failure.Load(); f != nil {
		return fmt.Errorf("%w: scope %s: %w", ErrScopeUnusable, s, f.err)
	}
	return nil
}

// fail marks the scope unusable. The first failure wins.
func (s *Scope) fail(err error) {
	if s.failure.CompareAndSwap(nil, &scopeFailure{err: err}) {
		s.catalog.logger.Error("scope unusable", "scope", s.String(), "error", err)
	}
}

// Snapshot returns the latest published snapshot.
func (s *Scope) Snapshot() (*Snapshot, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.current.Load(), nil
}

func (s *Scope) acquire(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scope) release() { <-s.writer }

// Begin starts a session. It blocks while another session of the scope is
// open.
func (s *Scope) Begin(ctx context.Context) (*Session, error) {
	if s.catalog.closed.Load() {
		return nil, ErrClosed
	}
	if err := s.usable(); err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	if err := s.usable(); err != nil {
		s.release()
		return nil, err
	}
	sess := &Session{
		id:      uuid.New(),
		scope:   s,
		base:    s.current.Load(),
		touched: make(map[storagepart.ID]storagepart.Part),
		deleted: make(map[storagepart.ID]struct{}),
	}
	s.catalog.logger.Debug("session started", "scope", s.String(), "session", sess.id)
	return sess, nil
}
