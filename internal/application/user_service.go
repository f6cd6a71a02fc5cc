package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	repo "github.com/lumenchat/lumenchat-backend/internal/domain/repository"
	"github.com/lumenchat/lumenchat-backend/pkg/helpers"
)

// UserService owns the user record lifecycle outside of billing: lazy
// creation, the status endpoint, avatar uploads, and search.
type UserService struct {
	Repo         repo.UserRepository
	Cache        *StatusCache
	Notifier     *Notifier
	GCS          *storage.Client
	GCSBucket    string
	ES           *elasticsearch.Client
	ESUsersIndex string
	Logger       *logrus.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewUserService(r repo.UserRepository, cache *StatusCache, notifier *Notifier, gcs *storage.Client, gcsBucket string, es *elasticsearch.Client, esUsersIndex string, logger *logrus.Logger) *UserService {
	return &UserService{
		Repo:         r,
		Cache:        cache,
		Notifier:     notifier,
		GCS:          gcs,
		GCSBucket:    gcsBucket,
		ES:           es,
		ESUsersIndex: esUsersIndex,
		Logger:       logger,
		Now:          time.Now,
	}
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Ensure returns the record for the authenticated identity, creating it with
// trial defaults on the very first request. Creation is exactly-once per
// identity (upsert on the unique identity index).
func (s *UserService) Ensure(ctx context.Context, identityID, email, name string) (*entity.User, error) {
	trialEndsAt := s.now().Add(entity.TrialDuration).UTC()
	u, err := s.Repo.EnsureByIdentity(ctx, identityID, email, name, trialEndsAt)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return u, nil
}

// Status builds the /api/user-status payload, served from the short-TTL
// cache when possible.
func (s *UserService) Status(ctx context.Context, u *entity.User) StatusPayload {
	if cached, ok := s.Cache.Get(ctx, u.ID); ok {
		return *cached
	}
	p := StatusPayload{
		PlanStatus:  string(u.PlanStatus),
		ThreadCount: u.ThreadCount,
	}
	if u.TrialEndsAt != nil {
		t := u.TrialEndsAt.UTC().Format(time.RFC3339)
		p.TrialEndsAt = &t
	}
	s.Cache.Set(ctx, u.ID, p)
	return p
}

// UploadAvatar stores the image in GCS and records its public URL.
func (s *UserService) UploadAvatar(ctx context.Context, u *entity.User, r io.Reader, filename, contentType string) (string, error) {
	if s.GCS == nil || s.GCSBucket == "" {
		return "", errors.New("gcs not configured")
	}
	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", u.ID, id+ext))

	url, err := helpers.UploadImageToGCS(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}

	u.AvatarURL = url
	if err := s.Repo.Update(ctx, u); err != nil {
		return "", err
	}
	s.Notifier.PlanChanged(ctx, u, "")
	return url, nil
}

// SearchUsers performs a simple multi_match search on email and name.
func (s *UserService) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "name"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(s.ES.Search.WithContext(c), s.ES.Search.WithIndex(s.ESUsersIndex), s.ES.Search.WithBody(strings.NewReader(string(b))))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
