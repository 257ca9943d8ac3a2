package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Journal types mirror the hand-edited entries file, so they carry JSON tags.
type (
	BusinessLog struct {
		MRR          float64 `json:"mrr"`
		CurrentFocus string  `json:"currentFocus"`
		MicroWin     string  `json:"microWin"`
	}

	Mission struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Progress    float64 `json:"progress"`
		Target      float64 `json:"target"`
		Deadline    string  `json:"deadline"`
	}

	Location struct {
		City        string `json:"city"`
		Timezone    string `json:"timezone"`
		Weather     string `json:"weather"`
		MapImageURL string `json:"mapImageUrl,omitempty"`
	}

	Health struct {
		SleepScore       *float64 `json:"sleepScore,omitempty"`
		VO2Max           *float64 `json:"vo2Max,omitempty"`
		HabitTesting     string   `json:"habitTesting"`
		SleepScoreTarget *float64 `json:"sleepScoreTarget,omitempty"`
	}

	Book struct {
		Title           string  `json:"title"`
		Author          string  `json:"author,omitempty"`
		PercentComplete float64 `json:"percentComplete"`
	}

	Course struct {
		Title    string `json:"title"`
		Platform string `json:"platform"`
		Status   string `json:"status"`
	}

	Podcast struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}

	Newsletter struct {
		Title    string `json:"title"`
		Platform string `json:"platform"`
		Status   string `json:"status"`
	}

	Learning struct {
		CurrentBook *Book        `json:"currentBook,omitempty"`
		Courses     []Course     `json:"courses,omitempty"`
		Podcasts    []Podcast    `json:"podcasts,omitempty"`
		Newsletters []Newsletter `json:"newsletters,omitempty"`
		KeyTakeaway string       `json:"keyTakeaway,omitempty"`
		LatestIdea  string       `json:"latestIdea,omitempty"`
	}

	ChecklistItem struct {
		Item string `json:"item"`
		Done bool   `json:"done"`
	}

	ContentItem struct {
		Title                 string          `json:"title"`
		Subtitle              string          `json:"subtitle,omitempty"`
		Status                string          `json:"status"`
		Deadline              *string         `json:"deadline"`
		DistributionChecklist []ChecklistItem `json:"distributionChecklist,omitempty"`
	}

	Experiment struct {
		Name     string `json:"name"`
		Status   string `json:"status"`
		Learning string `json:"learning"`
	}

	EveningAdventure struct {
		Activity string  `json:"activity"`
		Rating   float64 `json:"rating"`
		Notes    string  `json:"notes,omitempty"`
	}

	NowPlaying struct {
		Title string `json:"title"`
		Type  string `json:"type"`
		Mood  string `json:"mood,omitempty"`
	}

	Photo struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	}

	DailyEntry struct {
		Date             string           `json:"date"`
		Business         BusinessLog      `json:"business"`
		Mission          Mission          `json:"mission"`
		Location         Location         `json:"location"`
		Health           Health           `json:"health"`
		Learning         Learning         `json:"learning"`
		Content          []ContentItem    `json:"content"`
		Experiments      Experiment       `json:"experiments"`
		EveningAdventure EveningAdventure `json:"eveningAdventure"`
		NowPlaying       NowPlaying       `json:"nowPlaying"`
		Changelog        []string         `json:"changelog"`
		Photo            *Photo           `json:"photo,omitempty"`
	}

	Journal struct {
		Entries     []DailyEntry `json:"entries"`
		LastUpdated string       `json:"lastUpdated"`
	}
)

var (
	ErrEmptyTitle        = errors.New("empty title")
	ErrInvalidProgress   = errors.New("invalid mission progress")
	ErrInvalidPercent    = errors.New("percent complete must be between 0 and 100")
	ErrInvalidRating     = errors.New("rating must be between 0 and 5")
	ErrInvalidSleepScore = errors.New("sleep score must be between 0 and 100")
)

func (m Mission) Validate() error {
	if m.Progress < 0 || m.Target < 0 {
		return ErrInvalidProgress
	}
	return nil
}

// Percent returns progress as a share of target, capped at 100.
func (m Mission) Percent() float64 {
	if m.Target <= 0 {
		return 0
	}
	p := m.Progress / m.Target * 100
	if p > 100 {
		return 100
	}
	return p
}

func (e DailyEntry) Validate() error {
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if err := e.Mission.Validate(); err != nil {
		return err
	}
	if b := e.Learning.CurrentBook; b != nil {
		if strings.TrimSpace(b.Title) == "" {
			return fmt.Errorf("current book: %w", ErrEmptyTitle)
		}
		if b.PercentComplete < 0 || b.PercentComplete > 100 {
			return ErrInvalidPercent
		}
	}
	if r := e.EveningAdventure.Rating; r < 0 || r > 5 {
		return ErrInvalidRating
	}
	if s := e.Health.SleepScore; s != nil && (*s < 0 || *s > 100) {
		return ErrInvalidSleepScore
	}
	for i, c := range e.Content {
		if strings.TrimSpace(c.Title) == "" {
			return fmt.Errorf("content item %d: %w", i, ErrEmptyTitle)
		}
	}
	return nil
}

// DaysSince returns whole days elapsed between the journal's lastUpdated
// timestamp and now, floored, so a timestamp later today counts as -1.
// ok is false when lastUpdated does not parse.
func (j Journal) DaysSince(now time.Time) (days int, ok bool) {
	t, err := time.Parse(time.RFC3339, j.LastUpdated)
	if err != nil {
		d, derr := ParseDate(j.LastUpdated)
		if derr != nil {
			return 0, false
		}
		t = d.Time
	}
	return int(math.Floor(now.Sub(t).Hours() / 24)), true
}
