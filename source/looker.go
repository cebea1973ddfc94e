package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/internal/httpclient"
)

// resultRowLimit caps each inline query; rule evaluation watches small
// result sets, not full extracts.
const resultRowLimit = 10

// LookerConnection queries a Looker instance through its REST API: login
// with API3 client credentials, run one inline query, log out.
type LookerConnection struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *httpclient.Client
}

// NewLookerConnection creates a Looker data source connection
func NewLookerConnection(baseURL, clientID, clientSecret string, client *httpclient.Client) *LookerConnection {
	return &LookerConnection{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
	}
}

// inlineQuery is the body of a Looker run_inline_query request
type inlineQuery struct {
	Model   string            `json:"model"`
	View    string            `json:"view"`
	Fields  []string          `json:"fields"`
	Filters map[string]string `json:"filters,omitempty"`
	Limit   string            `json:"limit"`
}

// CheckForData runs the rule's inline query and returns rows as
// field -> string maps. Numeric and boolean values are stringified so the
// diff layer compares a uniform representation.
func (c *LookerConnection) CheckForData(ctx context.Context, model, view string, filters map[string]string, fields []string) ([]map[string]string, error) {
	token, err := c.login(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "looker login failed")
	}
	defer c.logout(ctx, token)

	body, err := json.Marshal(inlineQuery{
		Model:   model,
		View:    view,
		Fields:  fields,
		Filters: filters,
		Limit:   fmt.Sprintf("%d", resultRowLimit),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode inline query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/4.0/queries/run/json?cache=true", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "looker query request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read query response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("looker query returned status %d: %s", resp.StatusCode, truncate(payload, 256))
	}

	return decodeRows(payload)
}

// login exchanges client credentials for an access token
func (c *LookerConnection) login(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/4.0/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("login returned status %d", resp.StatusCode)
	}

	var session struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", errors.Wrap(err, "failed to decode login response")
	}
	if session.AccessToken == "" {
		return "", errors.New("login response carried no access token")
	}
	return session.AccessToken, nil
}

// logout releases the session token. Failures are swallowed: the token
// expires on its own and the query result is already in hand.
func (c *LookerConnection) logout(ctx context.Context, token string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/4.0/logout", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// decodeRows parses the query result, stringifying every value
func decodeRows(payload []byte) ([]map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode query result")
	}

	rows := make([]map[string]string, 0, len(raw))
	for _, rawRow := range raw {
		row := make(map[string]string, len(rawRow))
		for field, value := range rawRow {
			row[field] = stringify(value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// stringify renders a JSON value the way it appeared on the wire
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
