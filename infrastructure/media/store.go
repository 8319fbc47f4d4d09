package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBytes     = 20 << 20
	defaultMaxDimension = 1440
)

var (
	ErrEmptyImage   = errors.New("downloaded image is empty")
	ErrImageTooBig  = errors.New("image exceeds size limit")
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

type Config struct {
	PublicDir     string
	PublicBaseURL string
	// Basic auth for Twilio media urls
	TwilioAccountSID string
	TwilioAuthToken  string
	// Hosts whose media needs credentials and can't be fetched by Meta directly
	PrivateHosts []string
	HTTPClient   *http.Client
	MaxBytes     int64
	MaxDimension int
}

// Store downloads inbound media and republishes it under the public directory.
type Store struct {
	cfg Config
}

func NewStore(cfg Config) *Store {
	if len(cfg.PrivateHosts) == 0 {
		cfg.PrivateHosts = []string{"api.twilio.com"}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = defaultMaxDimension
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Store{cfg: cfg}
}

func (s *Store) isPrivate(u *url.URL) bool {
	for _, h := range s.cfg.PrivateHosts {
		if strings.EqualFold(u.Host, h) {
			return true
		}
	}
	return false
}

// NeedsRehost reports whether Meta would be unable to fetch rawURL by itself.
func (s *Store) NeedsRehost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return u.Scheme != "https" || s.isPrivate(u)
}

// Load downloads an image, adding Twilio credentials for private hosts.
func (s *Store) Load(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid media url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	if s.isPrivate(u) && s.cfg.TwilioAccountSID != "" {
		req.SetBasicAuth(s.cfg.TwilioAccountSID, s.cfg.TwilioAuthToken)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, "", ErrImageTooBig
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	return data, http.DetectContentType(data), nil
}

// Rehost returns rawURL unchanged when it is already public; otherwise it downloads the image,
// re-encodes it as JPEG under the public directory and returns its public url.
func (s *Store) Rehost(ctx context.Context, rawURL, tenantID string) (string, error) {
	if !s.NeedsRehost(rawURL) {
		return rawURL, nil
	}
	data, _, err := s.Load(ctx, rawURL)
	if err != nil {
		return "", err
	}
	public, err := s.Save(data, tenantID)
	if err != nil {
		return "", err
	}
	logrus.Infof("[MEDIA] rehosted %s as %s", rawURL, public)
	return public, nil
}

// Save decodes jpeg, png or webp bytes and writes them as a JPEG file named after the tenant.
func (s *Store) Save(data []byte, tenantID string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > s.cfg.MaxDimension || b.Dy() > s.cfg.MaxDimension {
		img = imaging.Fit(img, s.cfg.MaxDimension, s.cfg.MaxDimension, imaging.Lanczos)
	}

	if err := os.MkdirAll(s.cfg.PublicDir, 0o755); err != nil {
		return "", fmt.Errorf("create public dir: %w", err)
	}
	prefix := unsafeNameChars.ReplaceAllString(tenantID, "")
	if prefix == "" {
		prefix = "media"
	}
	name := fmt.Sprintf("%s-%s.jpg", prefix, uuid.NewString())
	path := filepath.Join(s.cfg.PublicDir, name)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write image: %w", err)
	}
	return s.cfg.PublicBaseURL + "/public/" + name, nil
}
