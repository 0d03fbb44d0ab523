package core

import (
	"time"
)

// Item is the normalized unit of content produced by a connector and handed to a sink.
type Item struct {
	ID               string      `json:"id" yaml:"id"`
	Source           string      `json:"source" yaml:"source"`
	FeedID           string      `json:"feed_id,omitempty" yaml:"feed_id,omitempty"`
	Label            string      `json:"label,omitempty" yaml:"label,omitempty"`
	Title            string      `json:"title,omitempty" yaml:"title,omitempty"`
	Text             string      `json:"text,omitempty" yaml:"text,omitempty"`
	HTML             string      `json:"html,omitempty" yaml:"html,omitempty"`
	URL              string      `json:"url,omitempty" yaml:"url,omitempty"`
	PublicationTime  time.Time   `json:"publication_time" yaml:"publication_time"`
	UserID           string      `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Author           *StreamUser `json:"author,omitempty" yaml:"author,omitempty"`
	Mentions         []string    `json:"mentions,omitempty" yaml:"mentions,omitempty"`
	ReferencedUserID string      `json:"referenced_user_id,omitempty" yaml:"referenced_user_id,omitempty"`
	Tags             []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Media            []MediaItem `json:"media,omitempty" yaml:"media,omitempty"`
	// Lists and Category are filled in by scheduler enrichment.
	Lists    []string `json:"lists,omitempty" yaml:"lists,omitempty"`
	Category Category `json:"category,omitempty" yaml:"category,omitempty"`
}

// Valid reports whether the item carries the fields every sink relies on.
func (i *Item) Valid() bool {
	return i != nil && i.ID != "" && !i.PublicationTime.IsZero()
}

// StreamUser is a normalized author profile.
type StreamUser struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Username   string    `json:"username,omitempty" yaml:"username,omitempty"`
	Name       string    `json:"name,omitempty" yaml:"name,omitempty"`
	ProfileURL string    `json:"profile_url,omitempty" yaml:"profile_url,omitempty"`
	ImageURL   string    `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Followers  int       `json:"followers,omitempty" yaml:"followers,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// MediaType classifies a MediaItem.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaLink  MediaType = "link"
)

// MediaItem is a piece of media attached to an Item.
type MediaItem struct {
	ID           string    `json:"id,omitempty" yaml:"id,omitempty"`
	URL          string    `json:"url" yaml:"url"`
	Type         MediaType `json:"type" yaml:"type"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty"`
	Title        string    `json:"title,omitempty" yaml:"title,omitempty"`
}

// Category is an opaque user category assigned during enrichment.
type Category string
