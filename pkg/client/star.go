package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// StarPath returns the API path that stars owner/name for the authenticated user.
func StarPath(owner, name string) string {
	return "/user/starred/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// Star stars owner/name. Starring is idempotent on GitHub's side.
//
// Only 204 No Content is success. Any other status is returned as an
// *APIError carrying the response body; transport failures wrap ErrTransport.
func (c *Client) Star(ctx context.Context, owner, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resolve(StarPath(owner, name), nil), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return c.apiError(resp)
}
