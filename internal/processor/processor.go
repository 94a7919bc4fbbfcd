// Package processor is the event dispatch loop of spec.md §4.6: it drains
// the relay's inbound stream, classifies each wire event, routes it through
// the MLS engine and storage, and republishes a coarse Update per outcome.
package processor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
	"dialogcore/internal/mlsengine"
	"dialogcore/internal/wireevent"
)

const updateBufferSize = 64

// Processor owns the processed-set and drives dispatch of inbound events.
type Processor struct {
	log     *zap.Logger
	relay   domain.RelayClient
	storage domain.Storage
	engine  domain.MLSEngine

	mu        sync.Mutex
	processed map[domaintypes.EventID]struct{}

	updates chan domaintypes.Update
}

// New constructs a Processor bound to relay, storage and engine. Call Seed
// before Run to preload the processed-set from durable storage. log is
// nil-safe and defaults to zap.NewNop().
func New(relay domain.RelayClient, storage domain.Storage, engine domain.MLSEngine, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		log:       log,
		relay:     relay,
		storage:   storage,
		engine:    engine,
		processed: make(map[domaintypes.EventID]struct{}),
		updates:   make(chan domaintypes.Update, updateBufferSize),
	}
}

// Seed preloads the processed-set with every message event id storage
// already knows about, so a restart does not re-decrypt its own history.
func (p *Processor) Seed() error {
	ids, err := p.storage.ListAllMessageEventIDs()
	if err != nil {
		return errtyp.Wrap(errtyp.StorageBackend, "seeding processed set", err)
	}
	p.mu.Lock()
	for _, id := range ids {
		p.processed[id] = struct{}{}
	}
	p.mu.Unlock()
	return nil
}

// Updates returns the stream of coarse state-change notifications. Slow
// consumers lose the oldest buffered update rather than stall dispatch.
func (p *Processor) Updates() <-chan domaintypes.Update {
	return p.updates
}

// MarkProcessed records event id as handled without dispatching it, for the
// sender's own double-processing path: CreateMessage's caller processes its
// own event locally before publishing, then must suppress the relay's echo.
func (p *Processor) MarkProcessed(id domaintypes.EventID) {
	p.mu.Lock()
	p.processed[id] = struct{}{}
	p.mu.Unlock()
}

func (p *Processor) alreadyProcessed(id domaintypes.EventID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.processed[id]
	return ok
}

func (p *Processor) markProcessedLocked(id domaintypes.EventID) {
	p.mu.Lock()
	p.processed[id] = struct{}{}
	p.mu.Unlock()
}

// Run drains relay.Stream() until ctx is cancelled or the stream closes.
func (p *Processor) Run(ctx context.Context) {
	stream := p.relay.Stream()
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-stream:
			if !ok {
				return
			}
			p.dispatch(in.Event)
		}
	}
}

func (p *Processor) dispatch(event domaintypes.Event) {
	if p.alreadyProcessed(event.ID) {
		return
	}

	switch wireevent.Classify(event.Kind) {
	case domaintypes.KindKeyPackage:
		p.handleKeyPackage(event)
	case domaintypes.KindWelcome:
		p.handleWelcome(event)
	case domaintypes.KindGroupMessage, domaintypes.KindGroupEvolution:
		p.handleGroupEvent(event)
	default:
		// unrecognized kinds are dropped silently; not worth a processed-set slot
	}
}

func (p *Processor) handleKeyPackage(event domaintypes.Event) {
	record, err := mlsengine.ObserveKeyPackage(event)
	if err != nil {
		p.emitError(err)
		return
	}
	if err := p.storage.PutKeyPackageRecord(record); err != nil {
		p.emitError(errtyp.Wrap(errtyp.StorageBackend, "storing observed key package", err))
		return
	}
	p.markProcessedLocked(event.ID)
}

func (p *Processor) handleWelcome(event domaintypes.Event) {
	invite, err := p.engine.ProcessWelcome(event)
	if !p.handleEngineError(event.ID, err) {
		return
	}
	p.markProcessedLocked(event.ID)
	p.emit(domaintypes.Update{Kind: domaintypes.UpdateInviteReceived, WelcomeEventID: invite.WelcomeEventID})
}

func (p *Processor) handleGroupEvent(event domaintypes.Event) {
	result, err := p.engine.ProcessMessage(event)
	if !p.handleEngineError(event.ID, err) {
		return
	}

	switch result.Kind {
	case domain.ProcessDecrypted:
		status, err := p.storage.PutMessage(result.GroupID, result.Message)
		if err != nil {
			p.emitError(errtyp.Wrap(errtyp.StorageBackend, "storing decrypted message", err))
			return
		}
		p.markProcessedLocked(event.ID)
		if status == domaintypes.MessageInserted {
			p.emit(domaintypes.Update{Kind: domaintypes.UpdateGroupHasNewMessages, GroupID: result.GroupID})
		}
	case domain.ProcessEvolutionApplied:
		p.markProcessedLocked(event.ID)
		p.emit(domaintypes.Update{Kind: domaintypes.UpdateGroupEvolved, GroupID: result.GroupID, NewEpoch: result.NewEpoch})
	case domain.ProcessIgnored:
		// not one of our groups; nothing to record
	}
}

// handleEngineError reports err (if any) as an Update and returns whether
// dispatch should continue. A retryable failure leaves the event
// unprocessed so a later redelivery, or a subsequent evolution catching the
// local state up, can succeed; a non-retryable failure is marked processed
// so it is not retried forever.
func (p *Processor) handleEngineError(id domaintypes.EventID, err error) bool {
	if err == nil {
		return true
	}
	var te *errtyp.Error
	retryable := errors.As(err, &te) && te.Retryable
	if !retryable {
		p.markProcessedLocked(id)
		p.log.Warn("dispatch failed, event marked processed", zap.String("event_id", string(id)), zap.Error(err))
	} else {
		p.log.Info("dispatch failed, leaving event for retry", zap.String("event_id", string(id)), zap.Error(err))
	}
	p.emitError(err)
	return false
}

func (p *Processor) emitError(err error) {
	var te *errtyp.Error
	if errors.As(err, &te) {
		p.emit(domaintypes.Update{Kind: domaintypes.UpdateError, ErrorKind: string(te.Kind), ErrorDetail: te.Message})
		return
	}
	p.emit(domaintypes.Update{Kind: domaintypes.UpdateError, ErrorKind: string(errtyp.ProtocolFailure), ErrorDetail: err.Error()})
}

// Emit publishes u as if dispatch had produced it, for callers that advance
// state outside the normal relay-driven path (a just-sent message, a
// just-created group).
func (p *Processor) Emit(u domaintypes.Update) { p.emit(u) }

// emit pushes u, dropping the oldest buffered update if the channel is full
// so a slow consumer never stalls dispatch.
func (p *Processor) emit(u domaintypes.Update) {
	select {
	case p.updates <- u:
		return
	default:
	}
	p.log.Warn("slow consumer: dropping oldest buffered update", zap.Int("kind", int(u.Kind)))
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- u:
	default:
	}
}
