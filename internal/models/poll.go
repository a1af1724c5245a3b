package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// Poll is the question and options attached to a poll post
type Poll struct {
	Question   string       `json:"question"`
	Options    []PollOption `json:"options"`
	TotalVotes int          `json:"total_votes"`
}

// PollOption is one choice and its tally
type PollOption struct {
	Text    string `json:"text"`
	Votes   int    `json:"votes"`
	Percent int    `json:"percent"`
}

// Clone returns a deep copy
func (p Poll) Clone() Poll {
	out := p
	out.Options = append([]PollOption(nil), p.Options...)
	return out
}

// Tallies returns the per-option vote counts
func (p Poll) Tallies() []int {
	tallies := make([]int, len(p.Options))
	for i, opt := range p.Options {
		tallies[i] = opt.Votes
	}
	return tallies
}

// ApplyTallies replaces every option's vote count and recomputes
// TotalVotes and Percent from them. Extra tallies are ignored.
func (p *Poll) ApplyTallies(tallies []int) {
	for i := range p.Options {
		if i < len(tallies) {
			p.Options[i].Votes = tallies[i]
		} else {
			p.Options[i].Votes = 0
		}
	}
	percents := PollPercentages(p.Tallies())
	total := 0
	for i := range p.Options {
		p.Options[i].Percent = percents[i]
		total += p.Options[i].Votes
	}
	p.TotalVotes = total
}

// PollPercentages computes round(votes/total*100) per option; all zero when
// there are no votes. Negative tallies count as zero.
func PollPercentages(tallies []int) []int {
	out := make([]int, len(tallies))
	total := 0
	for _, v := range tallies {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return out
	}
	for i, v := range tallies {
		if v <= 0 {
			continue
		}
		out[i] = int(math.Round(float64(v) / float64(total) * 100))
	}
	return out
}

// Vote is a user's single choice on a poll post
type Vote struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID      string    `gorm:"not null;uniqueIndex:idx_votes_post_user" json:"post_id"`
	UserID      string    `gorm:"not null;uniqueIndex:idx_votes_post_user" json:"user_id"`
	OptionIndex int       `gorm:"not null" json:"option_index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = generateUUID()
	}
	return nil
}
