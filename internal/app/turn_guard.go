package app

import (
	"context"
	"sync"
)

// localTurnGuard is the in-process TurnGuard used when no shared guard is
// configured. It only protects turns served by this process.
type localTurnGuard struct {
	mu    sync.Mutex
	turns map[string]struct{}
	chats map[string]string
}

func newLocalTurnGuard() *localTurnGuard {
	return &localTurnGuard{
		turns: make(map[string]struct{}),
		chats: make(map[string]string),
	}
}

func (g *localTurnGuard) Acquire(_ context.Context, chatID, turnID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := chatID + "/" + turnID
	if _, ok := g.turns[key]; ok {
		return false, nil
	}
	g.turns[key] = struct{}{}
	return true, nil
}

func (g *localTurnGuard) Release(_ context.Context, chatID, turnID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.turns, chatID+"/"+turnID)
	return nil
}

func (g *localTurnGuard) Lock(_ context.Context, chatID, owner string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.chats[chatID]; held {
		return false, nil
	}
	g.chats[chatID] = owner
	return true, nil
}

func (g *localTurnGuard) Unlock(_ context.Context, chatID, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chats[chatID] == owner {
		delete(g.chats, chatID)
	}
	return nil
}
