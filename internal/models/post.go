package models

import "time"

// Tag is a label shared between posts.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Post is a blog entry owned by exactly one author.
type Post struct {
	ID        int64
	Title     string
	Content   string
	Tags      []Tag
	Author    AuthorSummary
	Image     string // Blob name under the media root, empty when unset
	CreatedAt time.Time
}

// PostFilter narrows a post listing.
type PostFilter struct {
	Tag    string
	Limit  int
	Offset int
}
