package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// StatusError is returned by GetJSON and PostJSON when the server answers
// outside 2xx.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

type RestClient struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewRestClient builds a client rooted at baseURL. A nil httpClient means
// one without a timeout; callers bound requests through the context.
func NewRestClient(baseURL string, headers map[string]string, httpClient *http.Client) *RestClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RestClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		httpClient: httpClient,
	}
}

func (c *RestClient) BaseURL() string { return c.baseURL }

func (c *RestClient) setHeaders(req *http.Request, headers map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}

func (c *RestClient) doRequest(request *http.Request) ([]byte, int, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	return body, response.StatusCode, err
}

func (c *RestClient) Get(ctx context.Context, endpoint string, headers map[string]string) ([]byte, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	c.setHeaders(request, headers)
	return c.doRequest(request)
}

func (c *RestClient) Post(ctx context.Context, endpoint string, body any, headers map[string]string) ([]byte, int, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, err
	}
	c.setHeaders(request, headers)
	return c.doRequest(request)
}

// GetJSON fetches endpoint and returns the raw reply, turning any non-2xx
// status into a *StatusError.
func (c *RestClient) GetJSON(ctx context.Context, endpoint string, headers map[string]string) ([]byte, error) {
	payload, status, err := c.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	return payload, c.checkStatus(http.MethodGet, endpoint, payload, status)
}

// PostJSON posts body and returns the raw reply, turning any non-2xx status
// into a *StatusError.
func (c *RestClient) PostJSON(ctx context.Context, endpoint string, body any, headers map[string]string) ([]byte, error) {
	payload, status, err := c.Post(ctx, endpoint, body, headers)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(http.MethodPost, endpoint, payload, status); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *RestClient) checkStatus(method, endpoint string, payload []byte, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return &StatusError{
		Method:     method,
		URL:        c.baseURL + endpoint,
		StatusCode: status,
		Body:       truncate(strings.TrimSpace(string(payload)), 200),
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
