// Package client provides an HTTP client for the front desk REST API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/status"
	"github.com/evcraddock/front-desk/internal/visit"
)

// Client is an HTTP client for the front desk API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	dialer       *websocket.Dialer
	closeTimeout time.Duration
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},

		dialer:       websocket.DefaultDialer,
		closeTimeout: 5 * time.Second,
	}
}

// APIError is a non-2xx response. Fields holds per-field validation
// messages when the server rejected a submission.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	return e.Message
}

// Me is the identity behind the API key.
type Me struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// ListOptions selects a view of the visits.
type ListOptions struct {
	View string // today or all (empty = today)
	Date string // YYYY-MM-DD, All view only
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.View != "" {
		q.Set("view", o.View)
	}
	if o.Date != "" {
		q.Set("date", o.Date)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// VisitList is the response from GET /api/visits.
type VisitList struct {
	View    string         `json:"view"`
	Date    string         `json:"date,omitempty"`
	Visits  []visit.Record `json:"visits"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
}

// TransitionResult is the response from POST /api/visits/{id}/{action}.
type TransitionResult struct {
	ID     string        `json:"id"`
	Status visit.Status  `json:"status"`
	Notice status.Notice `json:"notice"`
}

// NewUser is the request body for adding a staff account.
type NewUser struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Password   string `json:"password"`
}

// Me returns the signed-in identity.
func (c *Client) Me() (*Me, error) {
	var me Me
	if err := c.get("/api/me", &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// ListVisits returns the visits in the selected view, newest first.
func (c *Client) ListVisits(opts ListOptions) (*VisitList, error) {
	var list VisitList
	if err := c.get("/api/visits"+opts.query(), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateVisit registers a visit and returns its id.
func (c *Client) CreateVisit(in visit.Input) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post("/api/visits", in, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Transition applies a status transition to visit id.
func (c *Client) Transition(id string, kind status.Kind) (*TransitionResult, error) {
	var res TransitionResult
	path := fmt.Sprintf("/api/visits/%s/%s", url.PathEscape(id), kind)
	if err := c.post(path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Export downloads the selected view as CSV and returns it with the
// file name the server suggests.
func (c *Client) Export(opts ListOptions) ([]byte, string, error) {
	req, err := http.NewRequest("GET", c.baseURL+"/api/visits/export"+opts.query(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	body, header, err := c.send(req)
	if err != nil {
		return nil, "", err
	}

	name := "visits.csv"
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return body, name, nil
}

// ListUsers returns every staff account. Admin only.
func (c *Client) ListUsers() ([]*auth.User, error) {
	var users []*auth.User
	if err := c.get("/api/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AddUser creates a staff account. Admin only.
func (c *Client) AddUser(u NewUser) (*auth.User, error) {
	var user auth.User
	if err := c.post("/api/users", u, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a staff account. Admin only.
func (c *Client) DeleteUser(id int64) error {
	return c.doDelete(fmt.Sprintf("/api/users/%d", id))
}

// get performs a GET request and decodes the response.
func (c *Client) get(path string, result any) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(path string, body any, result any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

// doDelete performs a DELETE request.
func (c *Client) doDelete(path string) error {
	req, err := http.NewRequest("DELETE", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, nil)
}

// do executes a request and decodes a JSON response into result.
func (c *Client) do(req *http.Request, result any) error {
	body, _, err := c.send(req)
	if err != nil {
		return err
	}
	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// send executes a request with the auth header and turns error statuses
// into *APIError.
func (c *Client) send(req *http.Request) ([]byte, http.Header, error) {
	c.authorize(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Printf("warning: closing response body: %v\n", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, nil, responseError(resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

func (c *Client) authorize(h http.Header) {
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func responseError(code int, body []byte) *APIError {
	var errResp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	apiErr := &APIError{StatusCode: code, Message: "server error: " + http.StatusText(code)}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
		apiErr.Fields = errResp.Fields
	} else if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Message = text
	}
	return apiErr
}
