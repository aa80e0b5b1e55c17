// Package router applies whiteboard events to a room's stroke log and
// fans the results out to the room.
package router

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/protocol"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/room"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
)

// Registry tracks which room each connection joined and delivers frames.
type Registry interface {
	// Join places connID in room. Frames queued afterwards, including
	// those for connID alone, are delivered in the order they were queued.
	Join(connID, room string)
	Leave(connID string)
	RoomOf(connID string) (string, bool)

	// BroadcastToRoom delivers frame to every member of room except the
	// connection named by except. An empty except reaches everyone.
	BroadcastToRoom(room string, frame []byte, except string)
	EmitTo(connID string, frame []byte)
}

type Router struct {
	store    *store.Store
	registry Registry
	logger   *zap.Logger
	locks    roomLocks
}

func New(st *store.Store, registry Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		store:    st,
		registry: registry,
		logger:   logger.With(zap.String("component", "router")),
		locks:    roomLocks{locks: make(map[string]*sync.Mutex)},
	}
}

// roomLocks serializes the persist-then-broadcast pair of each event in
// a room. A join holds the same lock from its history read until the
// history is queued, so no point is missing from both.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *roomLocks) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (r *Router) encode(eventType string, payload any) []byte {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		r.logger.Error("failed to encode frame", zap.String("type", eventType), zap.Error(err))
		return nil
	}
	return frame
}

// Connect joins the connection to its sanitized room and sends it the
// room's history.
func (r *Router) Connect(ctx context.Context, connID, rawRoom string) {
	key := room.Sanitize(rawRoom)

	unlock := r.locks.lock(key)
	defer unlock()

	history, _ := r.store.LoadAll(ctx, key)
	r.registry.Join(connID, key)
	r.registry.EmitTo(connID, r.encode(protocol.TypeHistory, history))
}

// Handle applies one inbound frame. Frames from connections that have
// not joined a room, and malformed payloads, are dropped.
func (r *Router) Handle(ctx context.Context, connID string, frame protocol.Frame) {
	key, ok := r.registry.RoomOf(connID)
	if !ok {
		r.logger.Debug("frame from unjoined connection", zap.String("conn", connID), zap.String("type", frame.Type))
		return
	}

	switch frame.Type {
	case protocol.TypeDraw:
		r.handleDraw(ctx, connID, key, frame.Payload)
	case protocol.TypeClear:
		r.handleClear(ctx, connID, key)
	case protocol.TypeUndo:
		r.handleUndo(ctx, key)
	case protocol.TypeApplySnapshot:
		r.handleApplySnapshot(ctx, connID, key, frame.Payload)
	case protocol.TypeCursor:
		r.handleCursor(connID, key, frame.Payload)
	default:
		r.logger.Debug("unknown event", zap.String("conn", connID), zap.String("type", frame.Type))
	}
}

func (r *Router) handleDraw(ctx context.Context, connID, key string, payload json.RawMessage) {
	var point store.Point
	if err := json.Unmarshal(payload, &point); err != nil || !point.Type.Valid() {
		r.logger.Debug("dropping malformed point", zap.String("conn", connID), zap.String("room", key))
		return
	}

	unlock := r.locks.lock(key)
	defer unlock()

	r.store.Append(ctx, key, point)
	r.registry.BroadcastToRoom(key, r.encode(protocol.TypeDraw, point), connID)
}

func (r *Router) handleClear(ctx context.Context, connID, key string) {
	unlock := r.locks.lock(key)
	defer unlock()

	r.store.Clear(ctx, key)
	r.registry.BroadcastToRoom(key, r.encode(protocol.TypeClear, nil), connID)
}

func (r *Router) handleUndo(ctx context.Context, key string) {
	unlock := r.locks.lock(key)
	defer unlock()

	history, _ := r.store.Undo(ctx, key)
	r.registry.BroadcastToRoom(key, r.encode(protocol.TypeResetWithHistory, history), "")
}

func (r *Router) handleApplySnapshot(ctx context.Context, connID, key string, payload json.RawMessage) {
	points, err := store.DecodePoints(payload)
	if err != nil {
		r.logger.Debug("dropping snapshot payload", zap.String("conn", connID), zap.String("room", key), zap.Error(err))
		return
	}

	unlock := r.locks.lock(key)
	defer unlock()

	r.store.ReplaceAll(ctx, key, points)
	r.registry.BroadcastToRoom(key, r.encode(protocol.TypeResetWithHistory, points), "")
}

func (r *Router) handleCursor(connID, key string, payload json.RawMessage) {
	var in protocol.CursorIn
	if err := json.Unmarshal(payload, &in); err != nil {
		r.logger.Debug("dropping malformed cursor", zap.String("conn", connID), zap.Error(err))
		return
	}

	r.registry.BroadcastToRoom(key, r.encode(protocol.TypeCursor, protocol.CursorOut{
		ID:    connID,
		X:     in.X,
		Y:     in.Y,
		Color: in.Color,
	}), connID)
}

// Disconnect removes the connection and tells the room its cursor is gone.
func (r *Router) Disconnect(_ context.Context, connID string) {
	key, ok := r.registry.RoomOf(connID)
	r.registry.Leave(connID)
	if !ok {
		return
	}

	unlock := r.locks.lock(key)
	defer unlock()

	r.registry.BroadcastToRoom(key, r.encode(protocol.TypeCursorLeft, protocol.CursorLeft{ID: connID}), connID)
}
