package feed

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/sparks"
	"github.com/zfogg/sparkfeed/internal/telemetry"
)

type sparkState struct {
	content string
	version int
}

// EditSpark applies an edit to a Knowledge Spark. The edit shows up locally
// at once; the server transforms it over concurrent edits and its content
// and version replace the local copy. Edits to one spark are sent one at a
// time, in call order, each based on the version the previous one produced.
// A replace by anyone but the author comes back as a CONFLICT and is rolled
// back.
func (s *Store) EditSpark(ctx context.Context, targetID string, edit SparkEdit) (Record, error) {
	const action = "spark_edit"
	started := time.Now()

	op := sparks.Operation{
		Type:     sparks.OpType(edit.Op),
		Position: edit.Position,
		Length:   edit.Length,
		Text:     edit.Text,
	}
	if err := sparks.Validate(op); err != nil {
		return Record{}, errors.ValidationError("op", err.Error())
	}
	user, err := s.currentUser()
	if err != nil {
		return Record{}, err
	}
	op.EditorID = user.ID

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Record{}, errors.ServiceUnavailable("feed store")
	}
	laneKey := "spark:" + targetID
	held := s.acquireLaneLocked(laneKey)
	s.mu.Unlock()
	defer s.releaseLane(laneKey, held)

	select {
	case held.ch <- struct{}{}:
	case <-ctx.Done():
		return Record{}, errors.Normalize("edit spark", ctx.Err())
	}
	defer func() { <-held.ch }()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Record{}, errors.ServiceUnavailable("feed store")
	}
	i, err := s.confirmedTargetLocked(targetID)
	if err == nil && s.items[i].Post.Kind != models.KindSpark {
		err = errors.ValidationError("target_id", "post is not a spark")
	}
	var next string
	if err == nil {
		next, err = sparks.Apply(s.items[i].Post.Content, op)
		if err != nil {
			err = errors.ValidationError("position", err.Error())
		}
	}
	if err != nil {
		s.mu.Unlock()
		s.settle(action, targetID, started, metrics.OutcomeRejected, err)
		return Record{}, err
	}

	rec := &s.items[i]
	g := guardFor(s.edits, targetID)
	seq := g.begin(sparkState{content: rec.Post.Content, version: rec.Post.Version})
	baseVersion := rec.Post.Version
	rec.Post.Content = next
	origin := s.nextOriginLocked()
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TraceStoreAction(ctx, action, targetID)
	res, callErr := s.mutations.EditSpark(ctx, targetID, dto.SparkEditRequest{
		Op:          edit.Op,
		Position:    edit.Position,
		Length:      edit.Length,
		Text:        edit.Text,
		BaseVersion: baseVersion,
		Origin:      origin,
	})

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		telemetry.EndStoreAction(span, metrics.OutcomeStale, nil)
		return Record{}, nil
	}

	idx := s.indexByID(targetID)
	if callErr != nil {
		apiErr := errors.Normalize("edit spark", callErr)
		restore, ok := g.fail(seq)
		releaseGuard(s.edits, targetID, g)
		if ok && idx >= 0 {
			s.items[idx].Post.Content = restore.content
			s.items[idx].Post.Version = restore.version
			s.changedLocked()
		}
		s.mu.Unlock()
		s.notify()

		outcome := metrics.OutcomeRolledBack
		if stderrors.Is(apiErr, errors.ErrConflictSentinel) {
			s.appMetrics.SparkEdits.WithLabelValues(edit.Op, "conflict").Inc()
		}
		telemetry.EndStoreAction(span, outcome, apiErr)
		s.settle(action, targetID, started, outcome, apiErr)
		return Record{}, apiErr
	}

	confirmed := sparkState{content: res.Content, version: res.Version}
	var out Record
	apply := g.succeed(seq, confirmed)
	releaseGuard(s.edits, targetID, g)
	if apply && idx >= 0 {
		// A realtime update may already carry a newer version
		if res.Version >= s.items[idx].Post.Version {
			s.items[idx].Post.Content = res.Content
			s.items[idx].Post.Version = res.Version
		}
		s.changedLocked()
		out = s.items[idx].Clone()
	}
	s.mu.Unlock()
	s.notify()

	s.appMetrics.SparkEdits.WithLabelValues(edit.Op, "applied").Inc()
	telemetry.EndStoreAction(span, metrics.OutcomeConfirmed, nil)
	s.settle(action, targetID, started, metrics.OutcomeConfirmed, nil)
	return out, nil
}
