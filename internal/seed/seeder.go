// Package seed fills a database with fake profiles, posts and engagement
// for development and end-to-end tests.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/sparkfeed/internal/auth"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded profile
const DefaultPassword = "password123"

// seedEmailDomain marks seeded profiles so reseeding can find them
const seedEmailDomain = "@example.com"

var reactionKinds = []models.ReactionKind{
	models.ReactionLike, models.ReactionLove, models.ReactionCelebrate,
	models.ReactionInsightful, models.ReactionFunny, models.ReactionSupport,
}

var commentTemplates = []string{
	"This is great!",
	"Saving this for later",
	"Totally agree",
	"Can you share more details?",
	"Love it",
	"Nice one",
	"Following this thread",
}

// Options sizes a seeding run
type Options struct {
	Profiles int
	Posts    int
	Comments int

	// Seed makes a run reproducible; 0 picks a random seed
	Seed int64
}

// DevOptions is the size used for a development database
func DevOptions() Options {
	return Options{Profiles: 40, Posts: 300, Comments: 600}
}

// Result counts what a run created
type Result struct {
	Profiles  int
	Posts     int
	Reactions int
	Votes     int
	Comments  int
	Shares    int
	Edits     int
}

// Seeder writes seed data through the repositories so every counter the
// API maintains stays consistent
type Seeder struct {
	db         *gorm.DB
	profiles   repository.ProfileRepository
	posts      repository.PostRepository
	engagement repository.EngagementRepository
	sparks     repository.SparkRepository
	rng        *rand.Rand
	now        func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{
		db:         db,
		profiles:   repository.NewProfileRepository(db),
		posts:      repository.NewPostRepository(db),
		engagement: repository.NewEngagementRepository(db),
		sparks:     repository.NewSparkRepository(db),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

func (s *Seeder) reseed(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))
	// Seed returns an error only for unsupported seed types
	_ = gofakeit.Seed(seed)
}

// SeedDev seeds a development database with DevOptions
func (s *Seeder) SeedDev(ctx context.Context) (*Result, error) {
	return s.Seed(ctx, DevOptions())
}

// Seed creates opts.Profiles profiles (reusing earlier seed profiles), then
// posts of every kind with reactions, poll votes, comments, shares and
// spark edits
func (s *Seeder) Seed(ctx context.Context, opts Options) (*Result, error) {
	s.reseed(opts.Seed)
	res := &Result{}

	logger.Log.Info("Creating profiles...")
	profiles, err := s.seedProfiles(ctx, opts.Profiles, res)
	if err != nil {
		return nil, fmt.Errorf("failed to seed profiles: %w", err)
	}
	if len(profiles) == 0 {
		return res, nil
	}

	logger.Log.Info("Creating posts...")
	posts, err := s.seedPosts(ctx, profiles, opts.Posts, res)
	if err != nil {
		return nil, fmt.Errorf("failed to seed posts: %w", err)
	}

	logger.Log.Info("Creating engagement...")
	if err := s.seedEngagement(ctx, profiles, posts, res); err != nil {
		return nil, fmt.Errorf("failed to seed engagement: %w", err)
	}

	logger.Log.Info("Creating comments...")
	if err := s.seedComments(ctx, profiles, posts, opts.Comments, res); err != nil {
		return nil, fmt.Errorf("failed to seed comments: %w", err)
	}

	logger.Log.Info("Seeding complete",
		zap.Int("profiles", res.Profiles),
		zap.Int("posts", res.Posts),
		zap.Int("reactions", res.Reactions),
		zap.Int("votes", res.Votes),
		zap.Int("comments", res.Comments),
		zap.Int("shares", res.Shares),
		zap.Int("spark_edits", res.Edits),
	)
	return res, nil
}

// SeedTest creates the fixed profiles alice..eve and a small feed. It is
// safe to run repeatedly; existing profiles are reused.
func (s *Seeder) SeedTest(ctx context.Context) (*Result, error) {
	s.reseed(42)
	res := &Result{}

	accounts := []struct {
		username    string
		displayName string
	}{
		{"alice", "Alice Smith"},
		{"bob", "Bob Johnson"},
		{"charlie", "Charlie Brown"},
		{"diana", "Diana Prince"},
		{"eve", "Eve Wilson"},
	}

	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var profiles []models.Profile
	for _, acct := range accounts {
		existing, err := s.profiles.GetProfileByUsername(ctx, acct.username)
		if err == nil {
			profiles = append(profiles, *existing)
			continue
		}
		p := &models.Profile{
			Email:        acct.username + seedEmailDomain,
			Username:     acct.username,
			DisplayName:  acct.displayName,
			AvatarURL:    avatarURL(acct.username),
			PasswordHash: &hash,
		}
		if err := s.profiles.CreateProfile(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create test profile %s: %w", acct.username, err)
		}
		profiles = append(profiles, *p)
		res.Profiles++
	}

	posts, err := s.seedPosts(ctx, profiles, len(models.AllKinds), res)
	if err != nil {
		return nil, fmt.Errorf("failed to seed test posts: %w", err)
	}
	if err := s.seedComments(ctx, profiles, posts, 10, res); err != nil {
		return nil, fmt.Errorf("failed to seed test comments: %w", err)
	}
	return res, nil
}

// Clean removes all feed data (use with caution!)
func (s *Seeder) Clean(ctx context.Context) error {
	// Delete in reverse order of dependencies
	tables := []interface{}{
		&models.SparkVersion{},
		&models.Share{},
		&models.Comment{},
		&models.Vote{},
		&models.Reaction{},
		&models.Post{},
		&models.Profile{},
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
				return fmt.Errorf("failed to clean %T: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Seeder) seedProfiles(ctx context.Context, count int, res *Result) ([]models.Profile, error) {
	var existing []models.Profile
	err := s.db.WithContext(ctx).
		Where("email LIKE ?", "%"+seedEmailDomain).
		Order("created_at ASC").
		Find(&existing).Error
	if err != nil {
		return nil, err
	}
	if len(existing) >= count {
		logger.Log.Info("Found existing seed profiles, skipping creation", zap.Int("profiles", len(existing)))
		return existing[:count], nil
	}

	// One hash for every profile; bcrypt dominates seeding time otherwise
	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	profiles := existing
	for i := len(existing); i < count; i++ {
		username := fmt.Sprintf("%s%d", alphanumeric(gofakeit.Username()), i)
		p := &models.Profile{
			Email:        strings.ToLower(username) + seedEmailDomain,
			Username:     username,
			DisplayName:  gofakeit.Name(),
			Bio:          gofakeit.HipsterSentence(),
			AvatarURL:    avatarURL(username),
			PasswordHash: &hash,
		}
		if err := s.profiles.CreateProfile(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		profiles = append(profiles, *p)
		res.Profiles++
	}
	return profiles, nil
}

func (s *Seeder) seedPosts(ctx context.Context, profiles []models.Profile, count int, res *Result) ([]models.Post, error) {
	posts := make([]models.Post, 0, count)
	end := s.now()
	start := end.AddDate(0, 0, -30)

	for i := 0; i < count; i++ {
		author := profiles[s.rng.Intn(len(profiles))]
		// Cycle through every kind first so small runs still cover them all
		kind := models.AllKinds[i%len(models.AllKinds)]
		if i >= len(models.AllKinds) {
			kind = weightedKind(s.rng)
		}

		req := s.draft(kind)
		if err := feed.ValidateDraft(feed.DraftFromRequest(req)); err != nil {
			return nil, fmt.Errorf("generated invalid %s draft: %w", kind, err)
		}
		post, err := s.posts.CreatePost(ctx, author.ID, req)
		if err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}

		createdAt := gofakeit.DateRange(start, end)
		err = s.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ?", post.ID).
			UpdateColumns(map[string]interface{}{"created_at": createdAt, "updated_at": createdAt}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to backdate post: %w", err)
		}
		post.CreatedAt = createdAt

		posts = append(posts, *post)
		res.Posts++
	}
	return posts, nil
}

func (s *Seeder) draft(kind models.PostKind) dto.CreatePostRequest {
	req := dto.CreatePostRequest{Kind: kind, Content: gofakeit.HipsterSentence()}
	switch s.rng.Intn(10) {
	case 0:
		req.Visibility = models.VisibilityPrivate
	case 1, 2:
		req.Visibility = models.VisibilityFollowers
	}

	switch kind {
	case models.KindImage:
		for n := s.rng.Intn(3) + 1; n > 0; n-- {
			req.Media = append(req.Media, fmt.Sprintf("https://picsum.photos/seed/%s/800/600", gofakeit.UUID()))
		}
	case models.KindVideo:
		req.Media = []string{fmt.Sprintf("https://cdn.example.com/media/%s.mp4", gofakeit.UUID())}
	case models.KindPoll:
		req.Content = ""
		options := make([]string, s.rng.Intn(3)+2)
		for i := range options {
			options[i] = gofakeit.Word()
		}
		req.Poll = &dto.PollDraft{Question: "Which is better?", Options: options}
	case models.KindEvent:
		at := s.now().Add(time.Duration(s.rng.Intn(30*24)) * time.Hour)
		req.Title = fmt.Sprintf("Meetup in %s", gofakeit.City())
		req.EventAt = &at
	case models.KindLink:
		req.LinkURL = fmt.Sprintf("https://example.com/%s", gofakeit.Word())
	case models.KindSpark:
		req.Title = fmt.Sprintf("Notes on %s", gofakeit.Word())
	}
	return req
}

// weightedKind favors plain text, as real feeds do
func weightedKind(rng *rand.Rand) models.PostKind {
	switch n := rng.Intn(100); {
	case n < 45:
		return models.KindText
	case n < 60:
		return models.KindImage
	case n < 68:
		return models.KindVideo
	case n < 78:
		return models.KindPoll
	case n < 84:
		return models.KindEvent
	case n < 94:
		return models.KindLink
	default:
		return models.KindSpark
	}
}

func (s *Seeder) seedEngagement(ctx context.Context, profiles []models.Profile, posts []models.Post, res *Result) error {
	for _, post := range posts {
		for _, i := range s.rng.Perm(len(profiles))[:s.rng.Intn(len(profiles)+1)] {
			user := profiles[i]
			kind := reactionKinds[s.rng.Intn(len(reactionKinds))]
			if _, err := s.engagement.SetReaction(ctx, post.ID, user.ID, kind); err != nil {
				return fmt.Errorf("failed to react: %w", err)
			}
			res.Reactions++

			if post.Kind == models.KindPoll && post.Poll != nil && s.rng.Intn(3) > 0 {
				option := s.rng.Intn(len(post.Poll.Options))
				if _, err := s.engagement.CastVote(ctx, post.ID, user.ID, option); err != nil {
					return fmt.Errorf("failed to vote: %w", err)
				}
				res.Votes++
			}
		}

		if s.rng.Intn(5) == 0 {
			user := profiles[s.rng.Intn(len(profiles))]
			if _, err := s.engagement.SharePost(ctx, post.ID, user.ID, ""); err != nil {
				return fmt.Errorf("failed to share: %w", err)
			}
			res.Shares++
		}

		if post.Kind == models.KindSpark {
			if err := s.seedSparkEdits(ctx, profiles, post, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// seedSparkEdits appends a few sentences from random collaborators
func (s *Seeder) seedSparkEdits(ctx context.Context, profiles []models.Profile, post models.Post, res *Result) error {
	content := post.Content
	version := post.Version
	for n := s.rng.Intn(4); n > 0; n-- {
		editor := profiles[s.rng.Intn(len(profiles))]
		out, _, err := s.sparks.EditSpark(ctx, post.ID, editor.ID, dto.SparkEditRequest{
			Op:          "insert",
			Position:    len([]rune(content)),
			Text:        " " + gofakeit.HipsterSentence(),
			BaseVersion: version,
		})
		if err != nil {
			return fmt.Errorf("failed to edit spark: %w", err)
		}
		content, version = out.Content, out.Version
		res.Edits++
	}
	return nil
}

func (s *Seeder) seedComments(ctx context.Context, profiles []models.Profile, posts []models.Post, count int, res *Result) error {
	if len(profiles) == 0 || len(posts) == 0 {
		return nil
	}
	byPost := make(map[string][]string)

	for i := 0; i < count; i++ {
		user := profiles[s.rng.Intn(len(profiles))]
		post := posts[s.rng.Intn(len(posts))]

		// Mix of template comments and random sentences
		req := dto.CommentRequest{Content: gofakeit.HipsterSentence()}
		if s.rng.Intn(2) == 0 {
			req.Content = commentTemplates[s.rng.Intn(len(commentTemplates))]
		}
		if ids := byPost[post.ID]; len(ids) > 0 && s.rng.Intn(3) == 0 {
			parent := ids[s.rng.Intn(len(ids))]
			req.ParentID = &parent
		}

		comment, err := s.engagement.AddComment(ctx, post.ID, user.ID, req)
		if err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		byPost[post.ID] = append(byPost[post.ID], comment.ID)
		res.Comments++
	}
	return nil
}

func avatarURL(seed string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", seed)
}

func alphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
