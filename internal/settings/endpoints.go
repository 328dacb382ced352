package settings

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hogliux/collect/internal/domain"
)

// FormListURL joins server_url and formlist_url. An absolute formlist_url
// is used as is.
func FormListURL(ctx context.Context, general domain.PreferenceStore) (string, error) {
	server, err := String(ctx, general, General, KeyServerURL)
	if err != nil {
		return "", err
	}
	path, err := String(ctx, general, General, KeyFormListURL)
	if err != nil {
		return "", err
	}
	return joinEndpoint(server, path)
}

// ServerHost returns the host:port of server_url, the key under which
// session credentials are kept.
func ServerHost(ctx context.Context, general domain.PreferenceStore) (string, error) {
	server, err := String(ctx, general, General, KeyServerURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: server_url %q is not an absolute URL", domain.ErrInvalidPreference, server)
	}
	return u.Host, nil
}

func joinEndpoint(server, path string) (string, error) {
	path = strings.TrimSpace(path)
	if p, err := url.Parse(path); err == nil && p.IsAbs() {
		return path, nil
	}
	base, err := url.Parse(strings.TrimSpace(server))
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("%w: server_url %q is not an absolute URL", domain.ErrInvalidPreference, server)
	}
	return strings.TrimRight(base.String(), "/") + "/" + strings.TrimLeft(path, "/"), nil
}
