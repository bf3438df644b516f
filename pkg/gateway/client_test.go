package gateway

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/dg-queue/internal/testutil"
)

func newTestClient(t *testing.T, mock *testutil.MockGateway) *Client {
	t.Helper()

	client, err := New(DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://datagateway.example.org"),
		},
		{
			name:        "empty base url",
			config:      Config{},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "unsupported scheme",
			config:      Config{BaseURL: "ftp://datagateway.example.org"},
			expectError: true,
			errorMsg:    `base url must use http or https (got "ftp://datagateway.example.org")`,
		},
		{
			name:        "negative timeout",
			config:      Config{BaseURL: "https://datagateway.example.org", Timeout: -time.Second},
			expectError: true,
			errorMsg:    "timeout must be >= 0 (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	client, err := New(DefaultConfig("https://datagateway.example.org/"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.BaseURL() != "https://datagateway.example.org" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}
}

func TestLogin(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	client := newTestClient(t, mock)

	sessionID, err := client.Login(context.Background(), Credentials{
		Authenticator: "ldap",
		Username:      "abc12345",
		Password:      "secret",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sessionID != testutil.DefaultSessionID {
		t.Errorf("sessionID = %q, want %q", sessionID, testutil.DefaultSessionID)
	}

	reqs := mock.RequestsTo(testutil.PathSession)
	if len(reqs) != 1 {
		t.Fatalf("login requests = %d, want 1", len(reqs))
	}
	form := reqs[0].Form
	if form.Get("plugin") != "ldap" || form.Get("username") != "abc12345" || form.Get("password") != "secret" {
		t.Errorf("unexpected login form: %v", form)
	}
	if reqs[0].Method != http.MethodPost {
		t.Errorf("method = %s, want POST", reqs[0].Method)
	}
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantStatus int
		wantDecode bool
	}{
		{
			name:       "unauthorized",
			response:   testutil.NewUnauthorizedResponse(),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "server error",
			response:   testutil.NewServerErrorResponse(),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "malformed body",
			response:   testutil.MockResponse{StatusCode: http.StatusOK, Body: `not json`},
			wantDecode: true,
		},
		{
			name:       "empty session id",
			response:   testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"sessionId":""}`},
			wantDecode: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGateway()
			defer mock.Close()
			mock.SetResponse(http.MethodPost, testutil.PathSession, tt.response)
			client := newTestClient(t, mock)

			_, err := client.Login(context.Background(), Credentials{Username: "u", Password: "p"})
			if err == nil {
				t.Fatal("Expected error but got nil")
			}

			if tt.wantDecode {
				if !errors.Is(err, ErrDecode) {
					t.Errorf("errors.Is(err, ErrDecode) = false, err = %v", err)
				}
				return
			}

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("Expected *RequestError, got %T", err)
			}
			if reqErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, tt.wantStatus)
			}
			if reqErr.Body != tt.response.Body {
				t.Errorf("Body = %q, want %q", reqErr.Body, tt.response.Body)
			}
			if !errors.Is(err, ErrRequestFailed) {
				t.Error("errors.Is(err, ErrRequestFailed) = false")
			}
		})
	}
}

func TestQueueFiles(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	mock.SetHandler(http.MethodPost, testutil.PathQueueFiles, testutil.NotFoundHandler(42, func(f string) bool {
		return strings.HasSuffix(f, "missing.h5")
	}))
	client := newTestClient(t, mock)

	files := []string{"/dls/a.h5", "/dls/missing.h5", "/dls/b.h5"}
	resp, err := client.QueueFiles(context.Background(), QueueRequest{
		SessionID: "sid",
		Transport: "dls",
		FileName:  "run_part_1",
		Email:     "user@example.org",
		Files:     files,
	})
	if err != nil {
		t.Fatalf("QueueFiles() error = %v", err)
	}
	if resp.DownloadID != 42 {
		t.Errorf("DownloadID = %d, want 42", resp.DownloadID)
	}
	if !reflect.DeepEqual(resp.NotFound, []string{"/dls/missing.h5"}) {
		t.Errorf("NotFound = %v", resp.NotFound)
	}

	reqs := mock.RequestsTo(testutil.PathQueueFiles)
	if len(reqs) != 1 {
		t.Fatalf("queue requests = %d, want 1", len(reqs))
	}
	form := reqs[0].Form
	if form.Get("sessionId") != "sid" {
		t.Errorf("sessionId = %q", form.Get("sessionId"))
	}
	if form.Get("transport") != "dls" {
		t.Errorf("transport = %q", form.Get("transport"))
	}
	if form.Get("fileName") != "run_part_1" {
		t.Errorf("fileName = %q", form.Get("fileName"))
	}
	if form.Get("email") != "user@example.org" {
		t.Errorf("email = %q", form.Get("email"))
	}
	if !reflect.DeepEqual(form["files"], files) {
		t.Errorf("files = %v, want %v", form["files"], files)
	}
}

func TestQueueFiles_OmitsEmptyEmail(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	client := newTestClient(t, mock)

	_, err := client.QueueFiles(context.Background(), QueueRequest{
		SessionID: "sid",
		Transport: "https",
		FileName:  "x_part_1",
		Files:     []string{"/a"},
	})
	if err != nil {
		t.Fatalf("QueueFiles() error = %v", err)
	}

	form := mock.RequestsTo(testutil.PathQueueFiles)[0].Form
	if _, ok := form["email"]; ok {
		t.Errorf("email should be omitted, form = %v", form)
	}
}

func TestQueueFiles_ServerError(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	mock.SetResponse(http.MethodPost, testutil.PathQueueFiles, testutil.NewServerErrorResponse())
	client := newTestClient(t, mock)

	_, err := client.QueueFiles(context.Background(), QueueRequest{SessionID: "sid", Files: []string{"/a"}})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected *RequestError, got %v", err)
	}
	if reqErr.Endpoint != EndpointQueueFiles || reqErr.Method != http.MethodPost {
		t.Errorf("unexpected request in error: %s %s", reqErr.Method, reqErr.Endpoint)
	}
}

func TestDownloadStatus(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	mock.SetStatusSequence([]string{"QUEUED", "COMPLETE", "RESTORING"})
	client := newTestClient(t, mock)

	statuses, err := client.DownloadStatus(context.Background(), "sid", []int{7, 8, 9})
	if err != nil {
		t.Fatalf("DownloadStatus() error = %v", err)
	}

	want := []Status{StatusQueued, StatusComplete, StatusRestoring}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}

	req := mock.RequestsTo(testutil.PathDownloadStatus)[0]
	if req.Method != http.MethodGet {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if req.Form.Get("sessionId") != "sid" {
		t.Errorf("sessionId = %q", req.Form.Get("sessionId"))
	}
	if !reflect.DeepEqual(req.Form["downloadIds"], []string{"7", "8", "9"}) {
		t.Errorf("downloadIds = %v", req.Form["downloadIds"])
	}
}

func TestDownloadStatus_LengthMismatch(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	mock.SetStatusSequence([]string{"COMPLETE"})
	client := newTestClient(t, mock)

	_, err := client.DownloadStatus(context.Background(), "sid", []int{1, 2})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("errors.Is(err, ErrDecode) = false, err = %v", err)
	}
}

func TestRefreshSession(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	client := newTestClient(t, mock)

	if err := client.RefreshSession(context.Background(), "sid"); err != nil {
		t.Fatalf("RefreshSession() error = %v", err)
	}

	req := mock.RequestsTo(testutil.PathRefreshSession)[0]
	if req.Method != http.MethodPut {
		t.Errorf("method = %s, want PUT", req.Method)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sid" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer sid")
	}
}

func TestRefreshSession_Error(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	mock.SetResponse(http.MethodPut, testutil.PathRefreshSession, testutil.NewUnauthorizedResponse())
	client := newTestClient(t, mock)

	err := client.RefreshSession(context.Background(), "sid")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("errors.Is(err, ErrRequestFailed) = false, err = %v", err)
	}
}

func TestDo_UserAgentSet(t *testing.T) {
	mock := testutil.NewMockGateway()
	defer mock.Close()
	client := newTestClient(t, mock)

	if _, err := client.Login(context.Background(), Credentials{}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	req := mock.Requests()[0]
	if got := req.Header.Get("User-Agent"); got != "dg-queue/0.1.0" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestDo_NetworkError(t *testing.T) {
	mock := testutil.NewMockGateway()
	client := newTestClient(t, mock)
	mock.Close()

	_, err := client.Login(context.Background(), Credentials{})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected *RequestError, got %T (%v)", err, err)
	}
	if reqErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", reqErr.StatusCode)
	}
	if reqErr.Err == nil {
		t.Error("Err should carry the transport error")
	}
}
