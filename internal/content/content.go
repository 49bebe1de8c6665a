// Package content rewrites sharing links from document and video hosts into
// URLs that can be framed inline. Resolution is purely syntactic.
package content

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	officeViewerURL  = "https://view.officeapps.live.com/op/embed.aspx?src="
	oneDriveEmbedURL = "https://onedrive.live.com/embed?resid=%s&authkey=%s&em=2"
	drivePreviewURL  = "https://drive.google.com/file/d/%s/preview"
)

var driveFileID = regexp.MustCompile(`[A-Za-z0-9_-]{25,}`)

// ResolveEmbedURL returns an embeddable URL for raw. An empty input yields an
// empty string, which callers treat as "no content". Unrecognised URLs are
// returned unchanged.
func ResolveEmbedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	switch {
	case strings.Contains(raw, "1drv.ms"):
		return officeViewerURL + url.QueryEscape(raw)
	case strings.Contains(raw, "onedrive.live.com"):
		resid, authkey := oneDriveParams(raw)
		return fmt.Sprintf(oneDriveEmbedURL, resid, authkey)
	case strings.Contains(raw, "drive.google.com"):
		if id := driveFileID.FindString(driveFilePath(raw)); id != "" {
			return fmt.Sprintf(drivePreviewURL, id)
		}
	}
	return raw
}

// oneDriveParams extracts resid and authkey from a long-form OneDrive URL.
// Missing parameters come back as empty strings.
func oneDriveParams(raw string) (resid, authkey string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	q := u.Query()
	return q.Get("resid"), q.Get("authkey")
}

// driveFilePath strips the scheme and host so the host name itself can never
// be mistaken for a file id.
func driveFilePath(raw string) string {
	if i := strings.Index(raw, "drive.google.com"); i >= 0 {
		return raw[i+len("drive.google.com"):]
	}
	return raw
}

// IsVideoHost reports whether raw points at YouTube, whose links are turned
// into player embeds instead of being resolved as documents.
func IsVideoHost(raw string) bool {
	return strings.Contains(raw, "youtube") || strings.Contains(raw, "youtu.be")
}

// VideoEmbedURL rewrites YouTube watch and short links into the embeddable
// player form.
func VideoEmbedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	return strings.NewReplacer(
		"watch?v=", "embed/",
		"youtu.be/", "youtube.com/embed/",
	).Replace(raw)
}

var msFormsHosts = []string{
	"forms.office.com",
	"forms.microsoft.com",
	"forms.cloud.microsoft",
}

// IsMicrosoftForm reports whether raw is a Microsoft Forms link. Only these
// forms take part in completion gating.
func IsMicrosoftForm(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range msFormsHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
