package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	gh "github.com/google/go-github/v50/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeAPI is an httptest-backed GitHub API serving the three endpoints the
// client touches.
type fakeAPI struct {
	mu sync.Mutex

	server *httptest.Server

	runnersBody  string
	runnersCalls int
	removedIDs   []string
	tokenStatus  int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		runnersBody: `{"total_count":0,"runners":[]}`,
		tokenStatus: http.StatusCreated,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/repos/octo/fixture/actions/runners/registration-token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.tokenStatus
		f.mu.Unlock()

		if status != http.StatusCreated {
			w.WriteHeader(status)
			return
		}

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token":"tok123","expires_at":"2026-01-01T00:00:00Z"}`)
	})

	mux.HandleFunc("/repos/octo/fixture/actions/runners/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		f.mu.Lock()
		f.removedIDs = append(f.removedIDs, r.URL.Path)
		f.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/repos/octo/fixture/actions/runners", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.runnersCalls++
		body := f.runnersBody
		f.mu.Unlock()

		fmt.Fprint(w, body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeAPI) setRunners(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runnersBody = body
}

func (f *fakeAPI) client() *Client {
	api := gh.NewClient(nil)
	base, _ := url.Parse(f.server.URL + "/")
	api.BaseURL = base

	return &Client{
		api:         api,
		owner:       "octo",
		repo:        "fixture",
		waitTimeout: 50 * time.Millisecond,
		pollDelay:   10 * time.Millisecond,
	}
}

const onlineRunner = `{"total_count":1,"runners":[{"id":7,"name":"ip-10-0-0-1","os":"linux","status":"online","labels":[{"id":1,"name":"self-hosted","type":"read-only"},{"id":2,"name":"my-label","type":"custom"}]}]}`

const offlineRunner = `{"total_count":1,"runners":[{"id":7,"name":"ip-10-0-0-1","os":"linux","status":"offline","labels":[{"id":2,"name":"my-label","type":"custom"}]}]}`

// ---------------------------------------------------------------------------
// Test suite
// ---------------------------------------------------------------------------

type GitHubClientSuite struct {
	suite.Suite
	ctx context.Context
	api *fakeAPI
}

func (s *GitHubClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.api = newFakeAPI(s.T())
}

func TestGitHubClientSuite(t *testing.T) {
	suite.Run(t, new(GitHubClientSuite))
}

func (s *GitHubClientSuite) TestGetRegistrationToken() {
	c := s.api.client()

	token, err := c.GetRegistrationToken(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "tok123", token)
}

func (s *GitHubClientSuite) TestGetRegistrationToken_Error() {
	s.api.tokenStatus = http.StatusForbidden
	c := s.api.client()

	_, err := c.GetRegistrationToken(s.ctx)
	assert.Error(s.T(), err)
}

func (s *GitHubClientSuite) TestWaitForRunnerRegistered_Online() {
	s.api.setRunners(onlineRunner)
	c := s.api.client()

	assert.NoError(s.T(), c.WaitForRunnerRegistered(s.ctx, "my-label"))
}

func (s *GitHubClientSuite) TestWaitForRunnerRegistered_ComesOnlineLater() {
	s.api.setRunners(offlineRunner)
	c := s.api.client()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.api.setRunners(onlineRunner)
	}()

	assert.NoError(s.T(), c.WaitForRunnerRegistered(s.ctx, "my-label"))
	assert.Greater(s.T(), s.api.runnersCalls, 1)
}

func (s *GitHubClientSuite) TestWaitForRunnerRegistered_Ceiling() {
	c := s.api.client()

	err := c.WaitForRunnerRegistered(s.ctx, "my-label")
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "not registered")
}

func (s *GitHubClientSuite) TestRemoveRunner_ByLabel() {
	s.api.setRunners(onlineRunner)
	c := s.api.client()

	require.NoError(s.T(), c.RemoveRunner(s.ctx, "my-label"))

	require.Len(s.T(), s.api.removedIDs, 1)
	assert.Equal(s.T(), "/repos/octo/fixture/actions/runners/7", s.api.removedIDs[0])
}

func (s *GitHubClientSuite) TestRemoveRunner_MissingIsNotAnError() {
	c := s.api.client()

	assert.NoError(s.T(), c.RemoveRunner(s.ctx, "my-label"))
	assert.Empty(s.T(), s.api.removedIDs)
}

func (s *GitHubClientSuite) TestRemoveRunner_WrongLabelLeftAlone() {
	s.api.setRunners(onlineRunner)
	c := s.api.client()

	assert.NoError(s.T(), c.RemoveRunner(s.ctx, "other-label"))
	assert.Empty(s.T(), s.api.removedIDs)
}
