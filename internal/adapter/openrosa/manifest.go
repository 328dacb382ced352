package openrosa

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hogliux/collect/internal/domain"
)

// FetchManifest downloads and parses the server's form list. Server
// refusals and unparseable lists come back as *domain.ManifestError so the
// caller can show the server's own text.
func (c *Client) FetchManifest(ctx context.Context) (map[string]domain.FormDetails, error) {
	listURL, err := c.formList(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve form list url: %w", err)
	}

	body, err := c.get(ctx, listURL)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, &domain.ManifestError{Message: fmt.Sprintf("Form list request failed: %s", se.Status)}
		}
		return nil, err
	}

	forms, err := parseFormList(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ManifestError{Message: fmt.Sprintf("Form list could not be parsed: %v", err)}
	}
	c.logger.InfoContext(ctx, "Fetched form list", "url", listURL, "forms", len(forms))
	return forms, nil
}
