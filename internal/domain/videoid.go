package domain

import (
	"regexp"

	"github.com/google/uuid"
)

var videoURLPattern = regexp.MustCompile(`@(?P<username>[^/]+)/video/(?P<video_id>\d+)`)

// VideoIDFromURL derives the canonical video id from a share URL. URLs of the
// form .../@<uploader>/video/<digits> map to "<uploader>-<digits>"; anything
// else gets a random uuid so the caller can still proceed.
func VideoIDFromURL(url string) string {
	m := videoURLPattern.FindStringSubmatch(url)
	if m == nil {
		return uuid.NewString()
	}
	return m[1] + "-" + m[2]
}

// UploaderHandle extracts the uploader portion of a canonical video id, which
// is everything before the first '-'. Returns the whole id when no '-' exists.
func UploaderHandle(videoID string) string {
	for i := 0; i < len(videoID); i++ {
		if videoID[i] == '-' {
			return videoID[:i]
		}
	}
	return videoID
}
