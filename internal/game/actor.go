package game

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const mailboxSize = 64

// gameActor serializes all work for one game. Intents and timer callbacks
// are posted as closures and executed in enqueue order by a single
// goroutine, so handlers never race on a game.
type gameActor struct {
	gameID  string
	mailbox chan func()
	done    chan struct{}
}

func newGameActor(gameID string) *gameActor {
	a := &gameActor{
		gameID:  gameID,
		mailbox: make(chan func(), mailboxSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *gameActor) run() {
	defer close(a.done)
	for fn := range a.mailbox {
		fn()
	}
}

// post enqueues fn; false means the mailbox is full (caller surfaces BUSY).
func (a *gameActor) post(fn func()) bool {
	defer func() {
		// Posting to a stopped actor loses the message instead of panicking.
		if recover() != nil {
			log.Warn().Str("gameId", a.gameID).Msg("post to stopped game actor dropped")
		}
	}()
	select {
	case a.mailbox <- fn:
		return true
	default:
		return false
	}
}

// stop closes the mailbox and waits for queued work to drain.
func (a *gameActor) stop() {
	close(a.mailbox)
	<-a.done
}

// actorPool owns one actor per live game.
type actorPool struct {
	mu     sync.Mutex
	actors map[string]*gameActor
}

func newActorPool() *actorPool {
	return &actorPool{actors: make(map[string]*gameActor)}
}

func (p *actorPool) get(gameID string) *gameActor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.actors[gameID]; ok {
		return a
	}
	a := newGameActor(gameID)
	p.actors[gameID] = a
	return a
}

func (p *actorPool) remove(gameID string) {
	p.mu.Lock()
	a, ok := p.actors[gameID]
	if ok {
		delete(p.actors, gameID)
	}
	p.mu.Unlock()
	if ok {
		a.stop()
	}
}

// drainAll stops every actor, letting queued work finish. Used on shutdown.
func (p *actorPool) drainAll() {
	p.mu.Lock()
	actors := make([]*gameActor, 0, len(p.actors))
	for _, a := range p.actors {
		actors = append(actors, a)
	}
	p.actors = make(map[string]*gameActor)
	p.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
}
