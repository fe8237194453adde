// Package media runs attachment uploads against the object-storage vendor's
// signed upload API. Each upload is an independent state machine
// (pending -> uploading -> succeeded | cancelled | failed), so one failed
// file never takes down the rest of a batch.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"meshline/backend/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateSucceeded State = "succeeded"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// UploadStatus is the caller-visible snapshot of one upload.
type UploadStatus struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	State    State  `json:"state"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type upload struct {
	mu       sync.Mutex
	id       string
	filename string
	state    State
	url      string
	err      error
	cancel   context.CancelFunc
}

func (u *upload) snapshot() UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	st := UploadStatus{ID: u.id, Filename: u.filename, State: u.state, URL: u.url}
	if u.err != nil {
		st.Error = u.err.Error()
	}
	return st
}

// transition moves the upload forward. Terminal states never change again:
// a cancel that loses the race against completion stays completed.
func (u *upload) transition(to State, url string, err error) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch u.state {
	case StateSucceeded, StateCancelled, StateFailed:
		return false
	}
	u.state = to
	u.url = url
	u.err = err
	return true
}

// forceCancel moves a completed upload to cancelled (its remote object is
// being removed).
func (u *upload) forceCancel() {
	u.mu.Lock()
	u.state = StateCancelled
	u.url = ""
	u.mu.Unlock()
}

type Service struct {
	endpoint  string
	apiKey    string
	apiSecret string

	client *http.Client
	log    *zap.Logger

	mu      sync.Mutex
	uploads map[string]*upload
}

func NewService(endpoint, apiKey, apiSecret string, log *zap.Logger) *Service {
	return &Service{
		endpoint:  endpoint,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: config.UploadRequestTimeout},
		log:       log,
		uploads:   make(map[string]*upload),
	}
}

// Start begins uploading content in the background and returns immediately
// with the tracking id.
func (s *Service) Start(filename string, content []byte) UploadStatus {
	u := &upload{
		id:       uuid.NewString(),
		filename: filename,
		state:    StatePending,
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel

	s.mu.Lock()
	s.uploads[u.id] = u
	s.mu.Unlock()

	go s.run(ctx, u, content)
	return u.snapshot()
}

// Get returns the current status of an upload.
func (s *Service) Get(id string) (UploadStatus, bool) {
	s.mu.Lock()
	u, ok := s.uploads[id]
	s.mu.Unlock()
	if !ok {
		return UploadStatus{}, false
	}
	return u.snapshot(), true
}

// Cancel hard-aborts an in-flight upload: the transfer stops via the abort
// context and any partially- or fully-stored remote object is cleaned up
// best-effort in the background. Cancel itself never blocks on the cleanup.
func (s *Service) Cancel(id string) (UploadStatus, bool) {
	s.mu.Lock()
	u, ok := s.uploads[id]
	s.mu.Unlock()
	if !ok {
		return UploadStatus{}, false
	}

	switch u.snapshot().State {
	case StateCancelled, StateFailed:
		// Already terminal; nothing left to stop or clean up.
	case StateSucceeded:
		// The object is fully stored; removing the attachment still means
		// it must go.
		u.forceCancel()
		go s.cleanupRemote(u.id)
	default:
		if u.transition(StateCancelled, "", nil) {
			u.cancel()
			go s.cleanupRemote(u.id)
		}
	}
	return u.snapshot(), true
}

func (s *Service) run(ctx context.Context, u *upload, content []byte) {
	if !u.transition(StateUploading, "", nil) {
		return // cancelled before the transfer started
	}

	remoteURL, err := s.push(ctx, u.id, content)
	if err != nil {
		if ctx.Err() != nil {
			// Aborted mid-transfer; Cancel already owns the state and the
			// cleanup.
			return
		}
		u.transition(StateFailed, "", err)
		s.log.Warn("upload failed",
			zap.String("upload_id", u.id), zap.String("filename", u.filename), zap.Error(err))
		return
	}

	if !u.transition(StateSucceeded, remoteURL, nil) {
		// Cancelled while the vendor was already storing the object.
		go s.cleanupRemote(u.id)
		return
	}
	s.log.Info("upload complete",
		zap.String("upload_id", u.id), zap.String("url", remoteURL))
}

// push performs the vendor's signed form upload.
func (s *Service) push(ctx context.Context, publicID string, content []byte) (string, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	form := url.Values{}
	form.Add("file", "data:application/octet-stream;base64,"+base64.StdEncoding.EncodeToString(content))
	form.Add("api_key", s.apiKey)
	form.Add("public_id", publicID)
	form.Add("timestamp", timestamp)
	form.Add("signature", s.sign("public_id="+publicID+"&timestamp="+timestamp))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload rejected with status %d: %s", res.StatusCode, bytes.TrimSpace(body))
	}

	var parsed struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
		Error     struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("undecodable upload response: %w", err)
	}
	if parsed.Error.Message != "" {
		return "", fmt.Errorf("upload rejected: %s", parsed.Error.Message)
	}

	remoteURL := parsed.SecureURL
	if remoteURL == "" {
		remoteURL = parsed.URL
	}
	if remoteURL == "" {
		return "", fmt.Errorf("upload response carried no URL")
	}
	return remoteURL, nil
}

// cleanupRemote deletes the remote object after a cancellation. Failures are
// logged and dropped: a leaked object costs storage, but cleanup must never
// block or fail the cancelling action.
func (s *Service) cleanupRemote(publicID string) {
	ctx, cancel := context.WithTimeout(context.Background(), config.CleanupTimeout)
	defer cancel()

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	form := url.Values{}
	form.Add("api_key", s.apiKey)
	form.Add("public_id", publicID)
	form.Add("timestamp", timestamp)
	form.Add("signature", s.sign("public_id="+publicID+"&timestamp="+timestamp))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.destroyEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		s.log.Warn("cleanup request build failed", zap.String("upload_id", publicID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("cleanup of cancelled upload failed",
			zap.String("upload_id", publicID), zap.Error(err))
		return
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		s.log.Warn("cleanup of cancelled upload rejected",
			zap.String("upload_id", publicID), zap.Int("status", res.StatusCode))
	}
}

func (s *Service) destroyEndpoint() string {
	if i := strings.LastIndex(s.endpoint, "/upload"); i != -1 {
		return s.endpoint[:i] + "/destroy"
	}
	return s.endpoint + "/destroy"
}

func (s *Service) sign(params string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(params+s.apiSecret)))
}
