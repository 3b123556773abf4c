// Package media holds the resolved media variant and the temporary artifact
// lifecycle: download to disk, sniff, hand off, remove.
package media

import (
	"errors"
	"fmt"
	"os"
)

// Kind tags a Media value as photo or video.
type Kind int

const (
	Photo Kind = iota
	Video
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	default:
		return "photo"
	}
}

// Ext returns the artifact file extension for the kind.
func (k Kind) Ext() string {
	if k == Video {
		return ".mp4"
	}
	return ".jpg"
}

// Media is a direct, unauthenticated, fetchable media location.
type Media struct {
	Kind Kind
	URL  string
}

// NewPhoto returns a photo Media.
func NewPhoto(url string) Media { return Media{Kind: Photo, URL: url} }

// NewVideo returns a video Media.
func NewVideo(url string) Media { return Media{Kind: Video, URL: url} }

func (m Media) String() string {
	return fmt.Sprintf("%s(%s)", m.Kind, m.URL)
}

// Artifact is a downloaded media file owned by exactly one request.
type Artifact struct {
	Path string
	Kind Kind
	MIME string
	Size int64
}

// Remove deletes the artifact file. Safe to call more than once.
func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact %s: %w", a.Path, err)
	}
	return nil
}
