package dataforseo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/seometer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vendorServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) *Client {
	return newClient(srv.URL+"/", "login@example.com", "secret", srv.Client())
}

const okBody = `{"status_code":20000,"status_message":"Ok.","cost":0.01,"tasks":[{"id":"t-1","status_code":20000,"status_message":"Ok.","result":[{"total_count":3}]}]}`

func TestClientSendsAuthAndTags(t *testing.T) {
	var gotTasks []map[string]any
	srv := vendorServer(t, http.StatusOK, okBody, func(r *http.Request) {
		login, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "login@example.com", login)
		assert.Equal(t, "secret", password)
		assert.Equal(t, "/v3/backlinks/summary/live", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotTasks))
	})

	resp, err := testClient(srv).Do(context.Background(), "", "v3/backlinks/summary/live", []TaskRequest{
		{"target": "example.com"},
		{"target": "example.org", "tag": "keep-me"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.01, resp.Cost)
	assert.Equal(t, []string{"t-1"}, resp.TaskIDs())

	require.Len(t, gotTasks, 2)
	assert.Len(t, gotTasks[0]["tag"], 26)
	assert.Equal(t, "keep-me", gotTasks[1]["tag"])

	var result struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, resp.FirstResult(&result))
	assert.Equal(t, 3, result.TotalCount)
}

func TestClientGetHasNoBody(t *testing.T) {
	srv := vendorServer(t, http.StatusOK, okBody, func(r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
	})
	_, err := testClient(srv).Do(context.Background(), http.MethodGet, "/v3/on_page/summary/t-1", nil)
	require.NoError(t, err)
}

func TestClientTopLevelStatusIsVendorError(t *testing.T) {
	srv := vendorServer(t, http.StatusOK, `{"status_code":40100,"status_message":"You are not authorized.","tasks":[]}`, nil)

	resp, err := testClient(srv).Do(context.Background(), "", "/v3/backlinks/summary/live", nil)
	var vendorErr *VendorError
	require.True(t, errors.As(err, &vendorErr))
	assert.Equal(t, 40100, vendorErr.Code)
	assert.Equal(t, "You are not authorized.", vendorErr.Message)
	require.NotNil(t, resp)
}

func TestClientTaskStatus(t *testing.T) {
	created := `{"status_code":20000,"tasks":[{"id":"t-9","status_code":20100,"status_message":"Task Created."}]}`
	srv := vendorServer(t, http.StatusOK, created, nil)
	resp, err := testClient(srv).Do(context.Background(), "", "/v3/on_page/task_post", []TaskRequest{{"target": "a.com"}})
	require.NoError(t, err)
	assert.Equal(t, "t-9", resp.Tasks[0].ID)

	failed := `{"status_code":20000,"tasks":[{"id":"t-10","status_code":40501,"status_message":"Invalid Field: 'target'."}]}`
	srv = vendorServer(t, http.StatusOK, failed, nil)
	_, err = testClient(srv).Do(context.Background(), "", "/v3/on_page/task_post", []TaskRequest{{}})
	var vendorErr *VendorError
	require.True(t, errors.As(err, &vendorErr))
	assert.Equal(t, "t-10", vendorErr.TaskID)
	assert.Equal(t, 40501, vendorErr.Code)
}

func TestClientHTTPFailureIsTransportError(t *testing.T) {
	srv := vendorServer(t, http.StatusBadGateway, "upstream down", nil)

	_, err := testClient(srv).Do(context.Background(), "", "/v3/backlinks/summary/live", nil)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.Equal(t, "upstream down", transportErr.Body)
}

func TestClientMalformedBodyIsTransportError(t *testing.T) {
	srv := vendorServer(t, http.StatusOK, "<html>", nil)
	_, err := testClient(srv).Do(context.Background(), "", "/v3/backlinks/summary/live", nil)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestClientMissingCredentials(t *testing.T) {
	client := NewClient(config.Config{DataForSEO: config.DataForSEOConfig{BaseURL: "https://api.dataforseo.com"}})
	_, err := client.Do(context.Background(), "", "/v3/backlinks/summary/live", nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	client = NewClient(config.Config{DataForSEO: config.DataForSEOConfig{Login: "a", Password: "b"}})
	assert.ErrorIs(t, client.Ready(), ErrMissingCredentials)
}

func TestNewClientDefaultsTimeout(t *testing.T) {
	client := NewClient(config.Config{DataForSEO: config.DataForSEOConfig{BaseURL: "https://x", Login: "a", Password: "b"}})
	assert.Equal(t, 60*time.Second, client.http.Timeout)
}

func TestFirstResultEmpty(t *testing.T) {
	var out map[string]any
	assert.ErrorIs(t, (&Response{}).FirstResult(&out), ErrNoResult)
	assert.ErrorIs(t, (&Response{Tasks: []Task{{Result: []json.RawMessage{json.RawMessage("null")}}}}).FirstResult(&out), ErrNoResult)
}
