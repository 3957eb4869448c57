package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/suPer8Hu/vidblog/internal/models"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

// Client publishes posts through the WordPress REST API using application
// passwords. It implements pipeline.Publisher.
type Client struct {
	client *http.Client
}

func NewClient() *Client {
	return &Client{client: &http.Client{Timeout: 60 * time.Second}}
}

type postReq struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type postResp struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// TestConnection reports whether the credentials are accepted. Rejected
// credentials return false with a nil error; transport and server failures
// return an error.
func (c *Client) TestConnection(ctx context.Context, target *models.PublishTarget) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, "/wp-json/wp/v2/users/me", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, pipeline.Wrap(pipeline.KindExternalService, "", "wordpress: request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, pipeline.ResponseError("wordpress", resp)
	}
}

func (c *Client) Publish(ctx context.Context, target *models.PublishTarget, post pipeline.PostInput) (*pipeline.PublishedPost, error) {
	b, err := json.Marshal(postReq{Title: post.Title, Content: post.Content, Status: post.Status})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, target, "/wp-json/wp/v2/posts", b)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "", "wordpress: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, pipeline.ResponseError("wordpress", resp)
	}

	var decoded postResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "", "wordpress: decode response", err)
	}
	if decoded.ID == 0 {
		return nil, pipeline.Errorf(pipeline.KindExternalService, "", "wordpress: response has no post id")
	}
	return &pipeline.PublishedPost{ExternalID: strconv.FormatInt(decoded.ID, 10), URL: decoded.Link}, nil
}

func (c *Client) newRequest(ctx context.Context, method string, target *models.PublishTarget, path string, body []byte) (*http.Request, error) {
	if target == nil {
		return nil, pipeline.Errorf(pipeline.KindValidation, "", "wordpress: publish target is required")
	}
	url := fmt.Sprintf("%s%s", strings.TrimRight(target.SiteURL, "/"), path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindValidation, "", "wordpress: build request", err)
	}
	// application passwords are shown with spaces; WordPress accepts them either way
	req.SetBasicAuth(target.Username, strings.ReplaceAll(target.AppPassword, " ", ""))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
