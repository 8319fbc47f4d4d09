package meta

import (
	"context"
	"errors"
	"fmt"

	"github.com/AzielCF/az-post/captions"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/sirupsen/logrus"
)

const defaultFacebookVersion = "v19.0"

var ErrMissingPage = errors.New("facebook page id or token missing")

// FacebookClient publishes page posts.
type FacebookClient struct {
	graph *graphClient
}

func NewFacebookClient(cfg Config) *FacebookClient {
	cfg = cfg.withDefaults(defaultFacebookVersion)
	return &FacebookClient{graph: &graphClient{http: cfg.HTTPClient, baseURL: cfg.BaseURL, version: cfg.Version}}
}

type publishResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (r publishResponse) postID() string {
	if r.PostID != "" {
		return r.PostID
	}
	return r.ID
}

// PublishPhoto posts the image with its caption. When the photo upload is rejected it falls back
// to a text-only feed post so the caption still goes out.
func (c *FacebookClient) PublishPhoto(ctx context.Context, creds tenants.PlatformCredentials, caption, imageURL string) (string, error) {
	if !creds.HasPrimary() {
		return "", ErrMissingPage
	}
	caption = captions.Truncate(caption, captions.DefaultMaxLength)

	if imageURL != "" {
		var photo publishResponse
		err := c.graph.postJSON(ctx, creds.PageID+"/photos", map[string]string{
			"caption":      caption,
			"url":          imageURL,
			"access_token": creds.PageToken,
		}, &photo)
		if err == nil && photo.postID() != "" {
			logrus.Infof("[META] facebook photo post %s on page %s", photo.postID(), creds.PageID)
			return photo.postID(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logrus.WithError(err).Warnf("[META] facebook photo upload failed on page %s, falling back to feed", creds.PageID)
	}

	var feed publishResponse
	if err := c.graph.postJSON(ctx, creds.PageID+"/feed", map[string]string{
		"message":      caption,
		"access_token": creds.PageToken,
	}, &feed); err != nil {
		return "", fmt.Errorf("facebook feed post: %w", err)
	}
	if feed.postID() == "" {
		return "", fmt.Errorf("facebook feed post returned no id")
	}
	logrus.Infof("[META] facebook feed post %s on page %s", feed.postID(), creds.PageID)
	return feed.postID(), nil
}
