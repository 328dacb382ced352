package openrosa

import (
	"context"
	"net"
	"net/url"
)

// Available dials the form server's host. Any failure to resolve the
// endpoint or connect counts as offline.
func (c *Client) Available(ctx context.Context) bool {
	listURL, err := c.formList(ctx)
	if err != nil {
		return false
	}
	u, err := url.Parse(listURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.dialLimit)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		c.logger.DebugContext(ctx, "Form server unreachable", "host", u.Host, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}
