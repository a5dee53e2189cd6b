package usecase

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-agent/internal/domain"
)

const defaultMaxQueryLength = 2000

// Store is the conversation persistence contract. Get reports absence with
// found=false and a nil error; corrupt records are reported with an error
// wrapping domain.ErrStateCorrupt.
type Store interface {
	Get(ctx context.Context, sessionKey string) (domain.ConversationState, bool, error)
	Put(ctx context.Context, state domain.ConversationState) error
	Clear(ctx context.Context, sessionKey string) error
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	ContextTurns     int
	MaxQueryLength   int
	ParallelClassify bool
	Prompts          *PromptSet
	Logger           *zap.Logger
}

type ProcessInput struct {
	Query      string
	SessionKey string
}

// Service drives the classify-then-route pipeline for one query at a time
// per session.
type Service struct {
	classifier       *Classifier
	responder        *Responder
	store            Store
	logger           *zap.Logger
	maxQueryLen      int
	parallelClassify bool

	machine *machine
	locks   *keyedMutex
	now     func() time.Time
}

func NewService(llm Completer, store Store, opts Options) (*Service, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	prompts := opts.Prompts
	if prompts == nil {
		var err error
		if prompts, err = DefaultPrompts(); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxQueryLen := opts.MaxQueryLength
	if maxQueryLen <= 0 {
		maxQueryLen = defaultMaxQueryLength
	}

	classifier, err := NewClassifier(llm, prompts)
	if err != nil {
		return nil, err
	}
	responder, err := NewResponder(llm, prompts, opts.ContextTurns)
	if err != nil {
		return nil, err
	}

	s := &Service{
		classifier:       classifier,
		responder:        responder,
		store:            store,
		logger:           logger,
		maxQueryLen:      maxQueryLen,
		parallelClassify: opts.ParallelClassify,
		locks:            newKeyedMutex(),
		now:              time.Now,
	}
	s.machine = newMachine(s.categorize, s.analyzeSentiment, s.respond, s.escalate)
	return s, nil
}

// Stream runs the pipeline and yields a snapshot after each completed stage.
// The last snapshot has Final set and is yielded only after the conversation
// was persisted. A failure is yielded once as a non-nil error and ends the
// sequence. Stopping the iteration early abandons the call without
// persisting anything.
func (s *Service) Stream(ctx context.Context, in ProcessInput) iter.Seq2[domain.Snapshot, error] {
	return func(yield func(domain.Snapshot, error) bool) {
		query := strings.TrimSpace(in.Query)
		if query == "" {
			yield(domain.Snapshot{}, newError(ErrorInvalidInput, "empty_query", nil))
			return
		}
		if utf8.RuneCountInString(query) > s.maxQueryLen {
			yield(domain.Snapshot{}, newError(ErrorInvalidInput, "query_too_long", nil))
			return
		}
		key := strings.TrimSpace(in.SessionKey)
		if key == "" {
			key = newUUID()
		}
		log := s.logger.With(zap.String("session_id", key))
		started := s.now()

		unlock, err := s.locks.Lock(ctx, key)
		if err != nil {
			yield(domain.Snapshot{SessionKey: key, Query: query}, newError(ErrorCanceled, "session_busy", err))
			return
		}
		defer unlock()

		state, err := s.load(ctx, key, log)
		if err != nil {
			yield(domain.Snapshot{SessionKey: key, Query: query}, err)
			return
		}

		rec := turnRecord{
			sessionKey: key,
			query:      query,
			turns:      state.Turns,
			version:    state.Version,
			replace:    state.Replace,
		}
		if s.parallelClassify {
			labels, err := s.classifier.both(ctx, query)
			if err != nil {
				log.Warn("classification failed", zap.Error(err))
				yield(rec.snapshot(domain.StageStart, false), err)
				return
			}
			rec.prefetched = &labels
		}

		stage, err := s.machine.next(domain.StageStart, rec)
		for err == nil && stage != domain.StageEnd {
			var handle stageFunc
			if handle, err = s.machine.handler(stage); err != nil {
				break
			}
			next, stageErr := handle(ctx, rec)
			if stageErr != nil {
				log.Warn("stage failed", zap.String("stage", string(stage)), zap.Error(stageErr))
				yield(rec.snapshot(stage, false), stageErr)
				return
			}
			rec = next

			following, nextErr := s.machine.next(stage, rec)
			if nextErr != nil {
				err = nextErr
				break
			}
			if following == domain.StageEnd {
				if err := s.commit(ctx, rec); err != nil {
					log.Warn("conversation not persisted", zap.Error(err))
					yield(rec.snapshot(stage, false), err)
					return
				}
				log.Info("query processed",
					zap.String("category", string(rec.category)),
					zap.String("sentiment", string(rec.sentiment)),
					zap.String("route", string(rec.route)),
					zap.Int("turns", len(rec.turns)),
					zap.Duration("elapsed", s.now().Sub(started)))
				yield(rec.snapshot(stage, true), nil)
				return
			}
			if !yield(rec.snapshot(stage, false), nil) {
				log.Debug("stream abandoned", zap.String("stage", string(stage)))
				return
			}
			stage = following
		}
		if err != nil {
			yield(rec.snapshot(stage, false), newError(ErrorInternal, "state_machine", err))
		}
	}
}

// Process runs the pipeline to completion and returns the final snapshot.
func (s *Service) Process(ctx context.Context, in ProcessInput) (domain.Snapshot, error) {
	var last domain.Snapshot
	for snap, err := range s.Stream(ctx, in) {
		if err != nil {
			return snap, err
		}
		last = snap
	}
	if !last.Final {
		return last, newError(ErrorInternal, "incomplete_stream", nil)
	}
	return last, nil
}

// Reset clears the stored conversation for sessionKey. Resetting an empty or
// unknown session is a no-op.
func (s *Service) Reset(ctx context.Context, sessionKey string) error {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return newError(ErrorInvalidInput, "missing_session", nil)
	}
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return newError(ErrorCanceled, "session_busy", err)
	}
	defer unlock()

	if err := s.store.Clear(ctx, key); err != nil {
		return newError(ErrorStore, "store_clear_failed", err)
	}
	s.logger.Info("conversation reset", zap.String("session_id", key))
	return nil
}

// History returns the persisted turns for sessionKey in chronological order.
func (s *Service) History(ctx context.Context, sessionKey string) ([]domain.ConversationTurn, error) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return nil, newError(ErrorInvalidInput, "missing_session", nil)
	}
	state, err := s.load(ctx, key, s.logger.With(zap.String("session_id", key)))
	if err != nil {
		return nil, err
	}
	return state.Turns, nil
}

// load distinguishes absent, corrupt and failed lookups. Absent and corrupt
// state both start a fresh conversation.
func (s *Service) load(ctx context.Context, key string, log *zap.Logger) (domain.ConversationState, error) {
	state, found, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrStateCorrupt):
		log.Warn("stored conversation is corrupt, starting fresh", zap.Error(err))
		return freshState(key), nil
	case err != nil:
		return domain.ConversationState{}, newError(ErrorStore, "store_get_failed", err)
	case !found:
		return domain.NewConversationState(key), nil
	}
	if err := state.Validate(); err != nil {
		log.Warn("stored conversation failed validation, starting fresh", zap.Error(err))
		return freshState(key), nil
	}
	return state, nil
}

// freshState replaces an unusable stored record on the next commit.
func freshState(key string) domain.ConversationState {
	state := domain.NewConversationState(key)
	state.Replace = true
	return state
}

func (s *Service) commit(ctx context.Context, rec turnRecord) error {
	if err := ctx.Err(); err != nil {
		return newError(ErrorCanceled, "canceled_before_commit", err)
	}
	state := domain.ConversationState{
		SessionKey: rec.sessionKey,
		Turns:      rec.turns,
		UpdatedAt:  s.now().UTC(),
		Version:    rec.version,
		Replace:    rec.replace,
	}
	if err := s.store.Put(ctx, state); err != nil {
		return newError(ErrorStore, "store_put_failed", err)
	}
	return nil
}

func (s *Service) categorize(ctx context.Context, rec turnRecord) (turnRecord, error) {
	raw := ""
	if rec.prefetched != nil {
		raw = rec.prefetched.category
	} else {
		var err error
		if raw, err = s.classifier.Category(ctx, rec.query); err != nil {
			return rec, err
		}
	}
	category, ok := domain.ParseCategory(raw)
	if !ok {
		s.logger.Warn("unrecognized category label, using fallback",
			zap.String("session_id", rec.sessionKey),
			zap.String("raw", raw),
			zap.String("fallback", string(category)))
	}
	rec.category = category
	return rec, nil
}

func (s *Service) analyzeSentiment(ctx context.Context, rec turnRecord) (turnRecord, error) {
	raw := ""
	if rec.prefetched != nil {
		raw = rec.prefetched.sentiment
	} else {
		var err error
		if raw, err = s.classifier.Sentiment(ctx, rec.query); err != nil {
			return rec, err
		}
	}
	sentiment, ok := domain.ParseSentiment(raw)
	if !ok {
		s.logger.Warn("unrecognized sentiment label, using fallback",
			zap.String("session_id", rec.sessionKey),
			zap.String("raw", raw),
			zap.String("fallback", string(sentiment)))
	}
	rec.sentiment = sentiment
	rec.route = Route(rec.category, rec.sentiment)
	return rec, nil
}

func (s *Service) respond(ctx context.Context, rec turnRecord) (turnRecord, error) {
	reply, turns, err := s.responder.Respond(ctx, rec.route, rec.query, rec.turns, rec.metadata())
	if err != nil {
		return rec, err
	}
	rec.response = reply
	rec.turns = turns
	return rec, nil
}

func (s *Service) escalate(_ context.Context, rec turnRecord) (turnRecord, error) {
	rec.response, rec.turns = s.responder.Escalate(rec.query, rec.turns, rec.metadata())
	return rec, nil
}

func (r turnRecord) metadata() domain.TurnMetadata {
	return domain.TurnMetadata{Category: r.category, Sentiment: r.sentiment}
}

var newUUID = func() string {
	return uuid.NewString()
}
