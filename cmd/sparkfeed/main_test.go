package main

import (
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/models"
)

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"app.example.com", "localhost:3000"},
		originPatterns([]string{"https://app.example.com", "http://localhost:3000/"}))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example.com", "*"}))
	assert.Equal(t, []string{"feed.example.com"}, originPatterns([]string{"feed.example.com/"}))
	assert.Empty(t, originPatterns(nil))
}

func TestTailFilters(t *testing.T) {
	defer func() { tailOwner, tailUser, tailKinds = "", "", nil }()

	tailOwner, tailKinds = "others", []string{"poll", "spark"}
	f, err := tailFilters()
	require.NoError(t, err)
	assert.Equal(t, dto.OwnerOthers, f.Owner)
	assert.Equal(t, []models.PostKind{models.KindPoll, models.KindSpark}, f.Kinds)

	tailOwner, tailKinds = "user", nil
	_, err = tailFilters()
	assert.Error(t, err, "user scope needs an author")

	tailOwner, tailKinds = "", []string{"audio"}
	_, err = tailFilters()
	assert.Error(t, err)

	tailOwner, tailKinds = "nobody", nil
	_, err = tailFilters()
	assert.Error(t, err)
}

func TestCardLines(t *testing.T) {
	color.NoColor = true
	vote := 1
	rec := feed.Record{
		State:  feed.StateOptimistic,
		TempID: "temp-1",
		MyVote: &vote,
		Post: models.Post{
			Kind:      models.KindPoll,
			UserID:    "u1",
			Author:    &models.Profile{DisplayName: "Ada"},
			Title:     "Lunch?",
			CreatedAt: time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC),
			Poll: &models.Poll{Options: []models.PollOption{
				{Text: "pizza", Votes: 2},
				{Text: "tacos", Votes: 3},
			}},
			CommentCount: 4,
		},
	}

	lines := cardLines(rec)
	require.Len(t, lines, 5)
	assert.Equal(t, "[poll] Ada  Mar 4 12:30  (sending)", lines[0])
	assert.Equal(t, "  Lunch?", lines[1])
	assert.Equal(t, "    pizza (2)", lines[2])
	assert.Equal(t, "  * tacos (3)", lines[3])
	assert.Equal(t, "  0 reactions  4 comments  0 shares", lines[4])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo wörld", 4))
	assert.Equal(t, strings.Repeat("a", 3), truncate("aaa", 3))
}
