package openrosa

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/hogliux/collect/internal/domain"
)

type xformsList struct {
	XMLName xml.Name   `xml:"xforms"`
	Forms   []xformDoc `xml:"xform"`
}

type xformDoc struct {
	FormID      string `xml:"formID"`
	Name        string `xml:"name"`
	Version     string `xml:"version"`
	Hash        string `xml:"hash"`
	DownloadURL string `xml:"downloadUrl"`
	ManifestURL string `xml:"manifestUrl"`
}

type legacyFormsList struct {
	XMLName xml.Name        `xml:"forms"`
	Forms   []legacyFormDoc `xml:"form"`
}

type legacyFormDoc struct {
	URL  string `xml:"url,attr"`
	Name string `xml:",chardata"`
}

// parseFormList reads an OpenRosa xformsList document, or the older
// <forms><form url=...> list. The result is keyed by form id.
func parseFormList(r io.Reader) (map[string]domain.FormDetails, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read form list: %w", err)
	}

	root, err := rootElement(body)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.FormDetails)
	switch root {
	case "xforms":
		var doc xformsList
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("parse form list: %w", err)
		}
		for _, f := range doc.Forms {
			d := domain.FormDetails{
				FormID:      strings.TrimSpace(f.FormID),
				Name:        strings.TrimSpace(f.Name),
				Version:     strings.TrimSpace(f.Version),
				Hash:        strings.TrimSpace(f.Hash),
				DownloadURL: strings.TrimSpace(f.DownloadURL),
				ManifestURL: strings.TrimSpace(f.ManifestURL),
			}
			if d.FormID == "" || d.DownloadURL == "" {
				return nil, fmt.Errorf("form list entry %q is missing formID or downloadUrl", d.Name)
			}
			out[d.FormID] = d
		}
	case "forms":
		var doc legacyFormsList
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("parse form list: %w", err)
		}
		for _, f := range doc.Forms {
			id := legacyFormID(f.URL)
			if id == "" {
				return nil, fmt.Errorf("form list entry %q has no form id in url", f.Name)
			}
			out[id] = domain.FormDetails{
				FormID:      id,
				Name:        strings.TrimSpace(f.Name),
				DownloadURL: strings.TrimSpace(f.URL),
			}
		}
	default:
		return nil, fmt.Errorf("unexpected form list root element <%s>", root)
	}
	return out, nil
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("parse form list: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func legacyFormID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Query().Get("formId")
}

type mediaManifest struct {
	XMLName xml.Name    `xml:"manifest"`
	Files   []mediaFile `xml:"mediaFile"`
}

type mediaFile struct {
	Filename    string `xml:"filename"`
	Hash        string `xml:"hash"`
	DownloadURL string `xml:"downloadUrl"`
}

func parseMediaManifest(r io.Reader) ([]mediaFile, error) {
	var m mediaManifest
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("parse media manifest: %w", err)
	}
	return m.Files, nil
}
