package pipeline

import (
	"net/url"
	"path"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {},
	".webm": {}, ".m4v": {}, ".flv": {}, ".wmv": {},
}

// ValidateSourceURL accepts absolute http(s) URLs whose path ends in a known
// video file extension.
func ValidateSourceURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Errorf(KindValidation, "", "source url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Wrap(KindValidation, "", "source url is not a valid url", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Errorf(KindValidation, "", "source url must use http or https")
	}
	if u.Host == "" {
		return Errorf(KindValidation, "", "source url has no host")
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := videoExtensions[ext]; !ok {
		return Errorf(KindValidation, "", "unsupported video format %q", ext)
	}
	return nil
}
