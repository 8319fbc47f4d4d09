package meta

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/AzielCF/az-post/captions"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

const defaultInstagramVersion = "v24.0"

var (
	ErrMissingAccount   = errors.New("instagram business id or token missing")
	ErrContainerFailed  = errors.New("instagram container reported ERROR")
	ErrContainerTimeout = errors.New("timed out waiting for instagram container")
)

// InstagramClient publishes through the container flow: create, wait until FINISHED, publish.
type InstagramClient struct {
	graph        *graphClient
	pollInterval time.Duration
	pollTimeout  time.Duration
	retry        retrypolicy.RetryPolicy[string]
}

func NewInstagramClient(cfg Config) *InstagramClient {
	cfg = cfg.withDefaults(defaultInstagramVersion)
	return &InstagramClient{
		graph:        &graphClient{http: cfg.HTTPClient, baseURL: cfg.BaseURL, version: cfg.Version},
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		retry:        newRetryPolicy[string]("instagram", cfg),
	}
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *InstagramClient) Publish(ctx context.Context, igBusinessID, token, caption, imageURL string) (string, error) {
	if igBusinessID == "" || token == "" {
		return "", ErrMissingAccount
	}
	if imageURL == "" {
		return "", fmt.Errorf("instagram publish requires an image")
	}
	caption = captions.Truncate(caption, captions.DefaultMaxLength)

	executor := failsafe.With[string](c.retry).WithContext(ctx)

	creationID, err := executor.Get(func() (string, error) {
		return c.createContainer(ctx, igBusinessID, token, caption, imageURL)
	})
	if err != nil {
		return "", fmt.Errorf("create instagram container: %w", err)
	}

	if err := c.waitForContainer(ctx, creationID, token); err != nil {
		return "", err
	}

	mediaID, err := executor.Get(func() (string, error) {
		return c.publishContainer(ctx, igBusinessID, token, creationID)
	})
	if err != nil {
		return "", fmt.Errorf("publish instagram container %s: %w", creationID, err)
	}
	logrus.Infof("[META] instagram media %s published for account %s", mediaID, igBusinessID)
	return mediaID, nil
}

func (c *InstagramClient) createContainer(ctx context.Context, igBusinessID, token, caption, imageURL string) (string, error) {
	var resp idResponse
	err := c.graph.postForm(ctx, igBusinessID+"/media", url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"access_token": {token},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("instagram media create returned no id")
	}
	return resp.ID, nil
}

func (c *InstagramClient) waitForContainer(ctx context.Context, creationID, token string) error {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		err := c.graph.get(ctx, creationID, url.Values{
			"fields":       {"status_code"},
			"access_token": {token},
		}, &status)
		if err != nil {
			logrus.WithError(err).Debugf("[META] container %s status check failed", creationID)
		}
		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR":
			return fmt.Errorf("%w (container %s)", ErrContainerFailed, creationID)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w (container %s)", ErrContainerTimeout, creationID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *InstagramClient) publishContainer(ctx context.Context, igBusinessID, token, creationID string) (string, error) {
	var resp idResponse
	err := c.graph.postForm(ctx, igBusinessID+"/media_publish", url.Values{
		"creation_id":  {creationID},
		"access_token": {token},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("instagram media publish returned no id")
	}
	return resp.ID, nil
}
