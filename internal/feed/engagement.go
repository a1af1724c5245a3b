package feed

import (
	"context"
	"time"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/telemetry"
)

type reactionState struct {
	entries []models.Reaction
	counts  models.ReactionCounts
	count   int
}

func (st reactionState) clone() reactionState {
	return reactionState{
		entries: cloneReactions(st.entries),
		counts:  st.counts.Clone(),
		count:   st.count,
	}
}

func reactionStateOf(rec Record) reactionState {
	return reactionState{
		entries: cloneReactions(rec.Reactions),
		counts:  rec.Post.ReactionCounts.Clone(),
		count:   rec.Post.ReactionCount,
	}
}

func (st reactionState) applyTo(rec *Record) {
	c := st.clone()
	rec.Reactions = c.entries
	rec.Post.ReactionCounts = c.counts
	rec.Post.ReactionCount = c.count
}

// withReaction returns st with userID's reaction set to kind, enforcing one
// reaction per user
func (st reactionState) withReaction(postID, userID string, kind models.ReactionKind) reactionState {
	out := st.clone()
	previous := models.ReactionNone

	entries := make([]models.Reaction, 0, len(out.entries)+1)
	for _, r := range out.entries {
		if r.UserID == userID {
			previous = r.Kind
			continue
		}
		entries = append(entries, r)
	}
	if previous == kind {
		return st.clone()
	}

	if out.counts == nil {
		out.counts = models.ReactionCounts{}
	}
	if previous != models.ReactionNone {
		out.counts[previous]--
		if out.counts[previous] <= 0 {
			delete(out.counts, previous)
		}
		out.count = max(0, out.count-1)
	}
	if kind != models.ReactionNone {
		entries = append(entries, models.Reaction{PostID: postID, UserID: userID, Kind: kind})
		out.counts[kind]++
		out.count++
	}
	out.entries = entries
	return out
}

func reactionStateFromResult(current reactionState, postID, userID string, res *dto.ReactionResult) reactionState {
	out := current.withReaction(postID, userID, res.Kind)
	out.counts = res.ReactionCounts.Clone()
	out.count = res.ReactionCount
	return out
}

// ToggleReaction sets the acting user's reaction on a post; ReactionNone
// removes it. Repeating the current value does nothing. When calls for the
// same post overlap only the newest call's response is applied, and a
// failure restores the last state the server confirmed.
func (s *Store) ToggleReaction(ctx context.Context, targetID string, kind models.ReactionKind) error {
	const action = "reaction"
	started := time.Now()

	if kind != models.ReactionNone && !kind.Valid() {
		return errors.ValidationError("kind", "unknown reaction")
	}
	user, err := s.currentUser()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.ServiceUnavailable("feed store")
	}
	i, err := s.confirmedTargetLocked(targetID)
	if err != nil {
		s.mu.Unlock()
		s.settle(action, targetID, started, metrics.OutcomeRejected, err)
		return err
	}
	rec := &s.items[i]
	if rec.ReactionOf(user.ID) == kind {
		s.mu.Unlock()
		return nil
	}

	g := guardFor(s.reactions, targetID)
	seq := g.begin(reactionStateOf(*rec))
	reactionStateOf(*rec).withReaction(targetID, user.ID, kind).applyTo(rec)
	origin := s.nextOriginLocked()
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TraceStoreAction(ctx, action, targetID)
	res, callErr := s.mutations.SetReaction(ctx, targetID, dto.ReactionRequest{Kind: kind, Origin: origin})

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		telemetry.EndStoreAction(span, metrics.OutcomeStale, nil)
		return nil
	}

	idx := s.indexByID(targetID)
	if callErr != nil {
		apiErr := errors.Normalize("set reaction", callErr)
		restore, ok := g.fail(seq)
		releaseGuard(s.reactions, targetID, g)
		if ok && idx >= 0 {
			restore.applyTo(&s.items[idx])
			s.changedLocked()
		}
		s.mu.Unlock()
		if !ok {
			telemetry.EndStoreAction(span, metrics.OutcomeStale, apiErr)
			s.settle(action, targetID, started, metrics.OutcomeStale, apiErr)
			return nil
		}
		s.notify()
		telemetry.EndStoreAction(span, metrics.OutcomeRolledBack, apiErr)
		s.settle(action, targetID, started, metrics.OutcomeRolledBack, apiErr)
		return apiErr
	}

	confirmed := reactionStateFromResult(g.baseline, targetID, user.ID, res)
	apply := g.succeed(seq, confirmed)
	releaseGuard(s.reactions, targetID, g)
	if apply && idx >= 0 {
		confirmed.applyTo(&s.items[idx])
		s.changedLocked()
	}
	s.mu.Unlock()

	outcome := metrics.OutcomeConfirmed
	if apply {
		s.notify()
	} else {
		outcome = metrics.OutcomeStale
	}
	telemetry.EndStoreAction(span, outcome, nil)
	s.settle(action, targetID, started, outcome, nil)
	return nil
}

type voteState struct {
	myVote *int
	poll   *models.Poll
}

func voteStateOf(rec Record) voteState {
	st := voteState{}
	if rec.MyVote != nil {
		v := *rec.MyVote
		st.myVote = &v
	}
	if rec.Post.Poll != nil {
		poll := rec.Post.Poll.Clone()
		st.poll = &poll
	}
	return st
}

func (st voteState) applyTo(rec *Record) {
	c := voteStateOf(Record{MyVote: st.myVote, Post: models.Post{Poll: st.poll}})
	rec.MyVote = c.myVote
	rec.Post.Poll = c.poll
}

// VotePoll casts or changes the acting user's vote. The optimistic tally is
// local; once the server answers, percentages are recomputed from the
// server's tallies so concurrent voters do not cause drift.
func (s *Store) VotePoll(ctx context.Context, targetID string, optionIndex int) error {
	const action = "vote"
	started := time.Now()

	if _, err := s.currentUser(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.ServiceUnavailable("feed store")
	}
	i, err := s.confirmedTargetLocked(targetID)
	if err == nil {
		err = validateVote(s.items[i], optionIndex)
	}
	if err != nil {
		s.mu.Unlock()
		s.settle(action, targetID, started, metrics.OutcomeRejected, err)
		return err
	}
	rec := &s.items[i]
	if rec.MyVote != nil && *rec.MyVote == optionIndex {
		s.mu.Unlock()
		return nil
	}

	g := guardFor(s.votes, targetID)
	seq := g.begin(voteStateOf(*rec))

	tallies := rec.Post.Poll.Tallies()
	if rec.MyVote != nil && *rec.MyVote < len(tallies) {
		tallies[*rec.MyVote] = max(0, tallies[*rec.MyVote]-1)
	}
	tallies[optionIndex]++
	rec.Post.Poll.ApplyTallies(tallies)
	vote := optionIndex
	rec.MyVote = &vote
	origin := s.nextOriginLocked()
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TraceStoreAction(ctx, action, targetID)
	res, callErr := s.mutations.CastVote(ctx, targetID, dto.VoteRequest{OptionIndex: optionIndex, Origin: origin})

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		telemetry.EndStoreAction(span, metrics.OutcomeStale, nil)
		return nil
	}

	idx := s.indexByID(targetID)
	if callErr != nil {
		apiErr := errors.Normalize("cast vote", callErr)
		restore, ok := g.fail(seq)
		releaseGuard(s.votes, targetID, g)
		if ok && idx >= 0 {
			restore.applyTo(&s.items[idx])
			s.changedLocked()
		}
		s.mu.Unlock()
		if !ok {
			telemetry.EndStoreAction(span, metrics.OutcomeStale, apiErr)
			s.settle(action, targetID, started, metrics.OutcomeStale, apiErr)
			return nil
		}
		s.notify()
		telemetry.EndStoreAction(span, metrics.OutcomeRolledBack, apiErr)
		s.settle(action, targetID, started, metrics.OutcomeRolledBack, apiErr)
		return apiErr
	}

	confirmed := voteStateOf(Record{Post: models.Post{Poll: g.baseline.poll}})
	if confirmed.poll != nil {
		confirmed.poll.ApplyTallies(res.Tallies)
	}
	chosen := res.OptionIndex
	confirmed.myVote = &chosen

	apply := g.succeed(seq, confirmed)
	releaseGuard(s.votes, targetID, g)
	if apply && idx >= 0 {
		confirmed.applyTo(&s.items[idx])
		s.changedLocked()
	}
	s.mu.Unlock()

	outcome := metrics.OutcomeConfirmed
	if apply {
		s.notify()
	} else {
		outcome = metrics.OutcomeStale
	}
	telemetry.EndStoreAction(span, outcome, nil)
	s.settle(action, targetID, started, outcome, nil)
	return nil
}

func validateVote(rec Record, optionIndex int) error {
	if rec.Post.Kind != models.KindPoll || rec.Post.Poll == nil {
		return errors.ValidationError("target_id", "post is not a poll")
	}
	if optionIndex < 0 || optionIndex >= len(rec.Post.Poll.Options) {
		return errors.ValidationError("option_index", "option out of range")
	}
	return nil
}

// Share re-shares a post. The share counter moves immediately and is
// replaced by the server's count, or restored on failure.
func (s *Store) Share(ctx context.Context, targetID, message string) error {
	const action = "share"
	started := time.Now()

	if _, err := s.currentUser(); err != nil {
		return err
	}
	if len([]rune(message)) > MaxContentLength {
		return errors.ValidationError("message", "message is too long")
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.ServiceUnavailable("feed store")
	}
	i, err := s.confirmedTargetLocked(targetID)
	if err != nil {
		s.mu.Unlock()
		s.settle(action, targetID, started, metrics.OutcomeRejected, err)
		return err
	}
	g := guardFor(s.shares, targetID)
	seq := g.begin(s.items[i].Post.ShareCount)
	s.items[i].Post.ShareCount++
	origin := s.nextOriginLocked()
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TraceStoreAction(ctx, action, targetID)
	res, callErr := s.mutations.SharePost(ctx, targetID, dto.ShareRequest{Message: message, Origin: origin})

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		telemetry.EndStoreAction(span, metrics.OutcomeStale, nil)
		return nil
	}

	idx := s.indexByID(targetID)
	if callErr != nil {
		apiErr := errors.Normalize("share post", callErr)
		restore, ok := g.fail(seq)
		releaseGuard(s.shares, targetID, g)
		if ok && idx >= 0 {
			s.items[idx].Post.ShareCount = restore
			s.changedLocked()
		}
		s.mu.Unlock()
		if ok {
			s.notify()
		}
		// Every share is a separate action, so a failure is always reported
		telemetry.EndStoreAction(span, metrics.OutcomeRolledBack, apiErr)
		s.settle(action, targetID, started, metrics.OutcomeRolledBack, apiErr)
		return apiErr
	}

	apply := g.succeed(seq, res.ShareCount)
	releaseGuard(s.shares, targetID, g)
	if apply && idx >= 0 {
		s.items[idx].Post.ShareCount = res.ShareCount
		s.changedLocked()
	}
	s.mu.Unlock()
	if apply {
		s.notify()
	}
	telemetry.EndStoreAction(span, metrics.OutcomeConfirmed, nil)
	s.settle(action, targetID, started, metrics.OutcomeConfirmed, nil)
	return nil
}

// ToggleSave flips the local saved flag and returns the new value. It is
// never sent to the server, so there is nothing to roll back.
func (s *Store) ToggleSave(targetID string) (bool, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false, errors.ServiceUnavailable("feed store")
	}
	if _, err := s.confirmedTargetLocked(targetID); err != nil {
		s.mu.Unlock()
		return false, err
	}
	saved := !s.saved[targetID]
	if saved {
		s.saved[targetID] = true
	} else {
		delete(s.saved, targetID)
	}
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	s.appMetrics.StoreActionsTotal.WithLabelValues("save", metrics.OutcomeConfirmed).Inc()
	return saved, nil
}
