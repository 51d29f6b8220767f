package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChangeEventOp mirrors MongoDB's change-stream operationType values this
// subscriber acts on (spec §4.6 item 2).
type ChangeEventOp string

const (
	ChangeOpInsert ChangeEventOp = "insert"
	ChangeOpUpdate ChangeEventOp = "update"
	ChangeOpDelete ChangeEventOp = "delete"
)

// ChangeBatch is the single callback payload delivered per debounce window
// (spec §6 "Change-stream callback shape").
type ChangeBatch struct {
	OperationType ChangeEventOp
	Paths         []string
	Timestamp     time.Time
}

// PathExtractor recovers the affected chunk path from a raw change-stream
// event document. The chunks collection's delete events carry only the
// composite `_id`; insert/update events carry the full document
// (post-image) with a `path` field (spec §4.6 item 2).
type PathExtractor func(raw bson.Raw, op ChangeEventOp) (path string, ok bool)

type changeEvent struct {
	op   ChangeEventOp
	path string
	ok   bool
}

// ChangeStreamSubscriber batches chunks-collection change events on a
// configurable debounce window and delivers one callback per batch (spec
// §4.6 item 2). Mirrors the fsnotify watcher's debounce idiom in
// debouncer.go, applied to a change stream instead of filesystem events.
type ChangeStreamSubscriber struct {
	coll      *mongo.Collection
	debounce  time.Duration
	extractor PathExtractor

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewChangeStreamSubscriber constructs a subscriber over coll (typically
// the chunks collection). debounce defaults to 1000ms when <= 0 (spec §6
// "changeStreamDebounceMs (1000)").
func NewChangeStreamSubscriber(coll *mongo.Collection, debounce time.Duration, extractor PathExtractor) *ChangeStreamSubscriber {
	if debounce <= 0 {
		debounce = 1000 * time.Millisecond
	}
	return &ChangeStreamSubscriber{coll: coll, debounce: debounce, extractor: extractor}
}

// Start opens the change stream and begins delivering batches to onBatch.
// Per spec §4.6: "Errors starting the stream (e.g. 'only supported on
// replica sets') must yield false from start() without throwing" — Start
// returns (false, nil) in that case, never an error.
func (s *ChangeStreamSubscriber) Start(ctx context.Context, onBatch func(ChangeBatch)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return true, nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := s.coll.Watch(streamCtx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		slog.Warn("watcher: change stream unavailable, continuing without it", slog.String("error", err.Error()))
		return false, nil
	}

	events := make(chan changeEvent, 64)
	s.done = make(chan struct{})
	s.cancel = cancel
	s.started = true

	go s.readLoop(streamCtx, stream, events)
	go s.debounceLoop(streamCtx, events, onBatch)
	return true, nil
}

// readLoop blocks on the change stream and forwards extracted path events.
func (s *ChangeStreamSubscriber) readLoop(ctx context.Context, stream *mongo.ChangeStream, events chan<- changeEvent) {
	defer close(events)
	defer func() { _ = stream.Close(context.Background()) }()

	for stream.Next(ctx) {
		var evt struct {
			OperationType string `bson:"operationType"`
		}
		if err := stream.Decode(&evt); err != nil {
			slog.Warn("watcher: change stream decode error, skipping event", slog.String("error", err.Error()))
			continue
		}
		op := ChangeEventOp(evt.OperationType)
		path, ok := s.extractor(stream.Current, op)
		select {
		case events <- changeEvent{op: op, path: path, ok: ok}:
		case <-ctx.Done():
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("watcher: change stream read error, stopping subscriber", slog.String("error", err.Error()))
	}
}

// debounceLoop coalesces a burst of events arriving within the debounce
// window into exactly one ChangeBatch callback (spec §4.6: "batches events
// on a configurable debounce").
func (s *ChangeStreamSubscriber) debounceLoop(ctx context.Context, events <-chan changeEvent, onBatch func(ChangeBatch)) {
	defer close(s.done)

	pathSet := map[string]struct{}{}
	var lastOp ChangeEventOp
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pathSet) == 0 {
			return
		}
		paths := make([]string, 0, len(pathSet))
		for p := range pathSet {
			paths = append(paths, p)
		}
		onBatch(ChangeBatch{OperationType: lastOp, Paths: paths, Timestamp: time.Now()})
		pathSet = map[string]struct{}{}
	}

	for {
		select {
		case evt, open := <-events:
			if !open {
				flush()
				return
			}
			if !evt.ok {
				continue
			}
			pathSet[evt.path] = struct{}{}
			lastOp = evt.op
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.debounce)
			}
			timerC = timer.C

		case <-timerC:
			flush()
			timerC = nil

		case <-ctx.Done():
			flush()
			return
		}
	}
}

// Close stops the subscriber. Idempotent (spec §4.6: "close() is
// idempotent").
func (s *ChangeStreamSubscriber) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	s.cancel()
	<-s.done
	return nil
}
