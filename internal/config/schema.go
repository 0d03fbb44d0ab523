package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/bakkerme/curator-streams/internal/core"
)

// Supported networks.
const (
	NetworkReddit = "reddit"
	NetworkRSS    = "rss"
	NetworkWeb    = "web"
)

// StreamsDocument represents the top-level structure of a streams.yaml file
type StreamsDocument struct {
	// Directory is an optional path to the enrichment directory YAML.
	Directory string         `yaml:"directory,omitempty"`
	Streams   []StreamConfig `yaml:"streams"`
}

// StreamConfig describes one network instance: one connector, one queue and the
// feeds polled through it.
type StreamConfig struct {
	Name      string           `yaml:"name"`
	Network   string           `yaml:"network"`
	Workers   int              `yaml:"workers,omitempty"`
	QueueSize int              `yaml:"queue_size,omitempty"`
	Budget    BudgetConfig     `yaml:"budget,omitempty"`
	Schedule  *CronTrigger     `yaml:"schedule,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	// MaxAge drops RSS entries older than this window. Defaults to 30 days.
	MaxAge  Duration     `yaml:"max_age,omitempty"`
	Filters []FilterRule `yaml:"filters,omitempty"`
	Feeds   []FeedConfig `yaml:"feeds"`
}

// BudgetConfig caps a single poll.
type BudgetConfig struct {
	MaxRequests int      `yaml:"max_requests,omitempty"`
	MaxResults  int      `yaml:"max_results,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// CronTrigger defines a scheduled re-enqueue of every feed of a stream
type CronTrigger struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone,omitempty"`
}

// RateLimitConfig spaces consecutive page fetches of one retrieval.
type RateLimitConfig struct {
	Every Duration `yaml:"every"`
	Burst int      `yaml:"burst,omitempty"`
}

// FilterRule defines an expression evaluated against every item before it is
// stored. Result is "drop" (default) or "pass".
type FilterRule struct {
	Name   string `yaml:"name"`
	Rule   string `yaml:"rule"`
	Result string `yaml:"result,omitempty"`
}

// FeedConfig wraps the feed variants. Exactly one of Account, Keywords,
// Location, Group, URL or RSS must be set.
type FeedConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label,omitempty"`
	// Since is a lookback window for the initial watermark, e.g. "7d".
	Since Duration `yaml:"since,omitempty"`

	Account  *AccountFeedConfig  `yaml:"account,omitempty"`
	Keywords []string            `yaml:"keywords,omitempty"`
	Location *LocationFeedConfig `yaml:"location,omitempty"`
	Group    *GroupFeedConfig    `yaml:"group,omitempty"`
	URL      string              `yaml:"url,omitempty"`
	RSS      string              `yaml:"rss,omitempty"`
}

type AccountFeedConfig struct {
	UserID   string `yaml:"user_id,omitempty"`
	Username string `yaml:"username,omitempty"`
}

type LocationFeedConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	RadiusKm  float64 `yaml:"radius_km,omitempty"`
}

type GroupFeedConfig struct {
	Owner string `yaml:"owner"`
	Slug  string `yaml:"slug"`
}

// Duration is a time.Duration that unmarshals from extended duration strings
// such as "90m", "7d" or "2w".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LoadDocument reads and validates a streams document.
func LoadDocument(path string) (*StreamsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc StreamsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &doc, nil
}

// Validate performs validation on the streams document
func (d *StreamsDocument) Validate() error {
	if len(d.Streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}
	streams := map[string]bool{}
	feeds := map[string]string{}
	for i := range d.Streams {
		stream := &d.Streams[i]
		if stream.Name == "" {
			return fmt.Errorf("stream %d: name is required", i)
		}
		if streams[stream.Name] {
			return fmt.Errorf("stream %q: duplicate name", stream.Name)
		}
		streams[stream.Name] = true
		if err := stream.Validate(); err != nil {
			return err
		}
		for _, feed := range stream.Feeds {
			if other, ok := feeds[feed.ID]; ok {
				return fmt.Errorf("stream %q: feed id %q already used by stream %q", stream.Name, feed.ID, other)
			}
			feeds[feed.ID] = stream.Name
		}
	}
	return nil
}

func (s *StreamConfig) Validate() error {
	switch s.Network {
	case NetworkReddit, NetworkRSS, NetworkWeb:
	default:
		return fmt.Errorf("stream %q: unsupported network %q", s.Name, s.Network)
	}
	if s.Workers < 0 {
		return fmt.Errorf("stream %q: workers must be >= 0", s.Name)
	}
	if s.QueueSize < 0 {
		return fmt.Errorf("stream %q: queue_size must be >= 0", s.Name)
	}
	if s.Budget.MaxRequests < 0 || s.Budget.MaxResults < 0 || s.Budget.Timeout < 0 {
		return fmt.Errorf("stream %q: budget values must be >= 0", s.Name)
	}
	if s.Schedule != nil {
		if err := s.Schedule.Validate(); err != nil {
			return fmt.Errorf("stream %q: %w", s.Name, err)
		}
	}
	if s.RateLimit != nil && s.RateLimit.Every <= 0 {
		return fmt.Errorf("stream %q: rate_limit every must be > 0", s.Name)
	}
	for _, rule := range s.Filters {
		if rule.Name == "" || rule.Rule == "" {
			return fmt.Errorf("stream %q: filter name and rule are required", s.Name)
		}
		if rule.Result != "" && rule.Result != "pass" && rule.Result != "drop" {
			return fmt.Errorf("stream %q: filter %q result must be 'pass' or 'drop'", s.Name, rule.Name)
		}
	}
	if len(s.Feeds) == 0 {
		return fmt.Errorf("stream %q: at least one feed is required", s.Name)
	}
	for i := range s.Feeds {
		if err := s.Feeds[i].Validate(); err != nil {
			return fmt.Errorf("stream %q: %w", s.Name, err)
		}
	}
	return nil
}

func (c *CronTrigger) Validate() error {
	if strings.TrimSpace(c.Cron) == "" {
		return fmt.Errorf("schedule cron is required")
	}
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return fmt.Errorf("invalid cron %q: %w", c.Cron, err)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

func (f *FeedConfig) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("feed id is required")
	}
	if f.Since < 0 {
		return fmt.Errorf("feed %q: since must be >= 0", f.ID)
	}
	set := 0
	if f.Account != nil {
		set++
		if f.Account.UserID == "" && f.Account.Username == "" {
			return fmt.Errorf("feed %q: account requires user_id or username", f.ID)
		}
	}
	if len(f.Keywords) > 0 {
		set++
	}
	if f.Location != nil {
		set++
		if f.Location.Latitude < -90 || f.Location.Latitude > 90 || f.Location.Longitude < -180 || f.Location.Longitude > 180 {
			return fmt.Errorf("feed %q: location out of range", f.ID)
		}
		if f.Location.RadiusKm < 0 {
			return fmt.Errorf("feed %q: radius_km must be >= 0", f.ID)
		}
	}
	if f.Group != nil {
		set++
		if f.Group.Owner == "" || f.Group.Slug == "" {
			return fmt.Errorf("feed %q: group requires owner and slug", f.ID)
		}
	}
	if f.URL != "" {
		set++
		if err := validateURL(f.URL); err != nil {
			return fmt.Errorf("feed %q: url: %w", f.ID, err)
		}
	}
	if f.RSS != "" {
		set++
		if err := validateURL(f.RSS); err != nil {
			return fmt.Errorf("feed %q: rss: %w", f.ID, err)
		}
	}
	if set != 1 {
		return fmt.Errorf("feed %q: exactly one of account, keywords, location, group, url or rss is required", f.ID)
	}
	return nil
}

// BuildFeed converts the configuration into a feed whose initial watermark is
// now minus the Since lookback (or zero when no lookback is set).
func (f *FeedConfig) BuildFeed(now time.Time) (core.Feed, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var since time.Time
	if f.Since > 0 {
		since = now.Add(-f.Since.Std()).UTC()
	}
	label := f.Label
	if label == "" {
		label = f.ID
	}
	base := func() core.FeedBase {
		return core.FeedBase{ID: f.ID, Label: label, Since: since}
	}

	switch {
	case f.Account != nil:
		return &core.AccountFeed{FeedBase: base(), UserID: f.Account.UserID, Username: f.Account.Username}, nil
	case len(f.Keywords) > 0:
		return &core.KeywordsFeed{FeedBase: base(), Keywords: dedupeKeywords(f.Keywords)}, nil
	case f.Location != nil:
		radius := f.Location.RadiusKm
		if radius == 0 {
			radius = core.DefaultRadiusKm
		}
		return &core.LocationFeed{FeedBase: base(), Latitude: f.Location.Latitude, Longitude: f.Location.Longitude, RadiusKm: radius}, nil
	case f.Group != nil:
		return &core.GroupFeed{FeedBase: base(), Owner: f.Group.Owner, Slug: f.Group.Slug}, nil
	case f.URL != "":
		return &core.URLFeed{FeedBase: base(), URL: f.URL}, nil
	default:
		return &core.RSSFeed{FeedBase: base(), URL: f.RSS}, nil
	}
}

func dedupeKeywords(keywords []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		out = append(out, keyword)
	}
	return out
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
