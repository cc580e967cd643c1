// Package client talks to a courier server over its REST and websocket
// surfaces.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"courier/pkg/api/routes/backend"
	"courier/pkg/models"

	"github.com/valyala/fasthttp"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	base    string
	apiKey  string
	token   string
	http    *fasthttp.Client
	timeout time.Duration
}

// New builds a client for base. apiKey authenticates backend calls and
// token authenticates user calls; either may be empty.
func New(base, apiKey, token string) *Client {
	return &Client{
		base:    base,
		apiKey:  apiKey,
		token:   token,
		http:    &fasthttp.Client{Name: "courierctl"},
		timeout: 10 * time.Second,
	}
}

// WithHTTPClient swaps the transport, e.g. to dial an in-memory listener.
func (c *Client) WithHTTPClient(hc *fasthttp.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) do(method, path, cred string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.base + path)
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		return &APIError{Status: code, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Sign mints a credential token for userID with the backend key.
func (c *Client) Sign(userID string) (backend.SignResponse, error) {
	var out backend.SignResponse
	err := c.do(fasthttp.MethodPost, "/v1/sign", c.apiKey, backend.SignRequest{UserID: userID}, &out)
	return out, err
}

// CreateUser provisions a user with the backend key.
func (c *Client) CreateUser(id, username string) (models.User, error) {
	var out models.User
	err := c.do(fasthttp.MethodPost, "/v1/users", c.apiKey, backend.CreateUserRequest{ID: id, Username: username}, &out)
	return out, err
}

func (c *Client) History(userID string) ([]models.HistoryEntry, error) {
	var out []models.HistoryEntry
	err := c.do(fasthttp.MethodGet, "/v1/messages/"+url.PathEscape(userID), c.token, nil, &out)
	return out, err
}

func (c *Client) Contacts() ([]models.Contact, error) {
	var out []models.Contact
	err := c.do(fasthttp.MethodGet, "/v1/users", c.token, nil, &out)
	return out, err
}

func (c *Client) Profile() (models.User, error) {
	var out models.User
	err := c.do(fasthttp.MethodGet, "/v1/profile", c.token, nil, &out)
	return out, err
}

func (c *Client) UpdateProfile(upd models.ProfileUpdate) (models.User, error) {
	var out models.User
	err := c.do(fasthttp.MethodPut, "/v1/profile", c.token, upd, &out)
	return out, err
}
