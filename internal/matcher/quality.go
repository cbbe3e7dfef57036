package matcher

import (
	"regexp"
	"strings"
)

// Quality levels
const (
	Quality4K      = "4K"
	Quality1080p   = "1080p"
	Quality720p    = "720p"
	Quality480p    = "480p"
	QualitySD      = "SD"
	QualityUnknown = "Unknown"
)

var qualityPatterns = []struct {
	quality string
	pattern *regexp.Regexp
}{
	{Quality4K, regexp.MustCompile(`\b(2160p|4k|uhd)\b`)},
	{Quality1080p, regexp.MustCompile(`\b(1080p|fhd)\b`)},
	{Quality720p, regexp.MustCompile(`\b(720p|hd)\b`)},
	{Quality480p, regexp.MustCompile(`\b(480p|576p)\b`)},
	{QualitySD, regexp.MustCompile(`\b(dvdrip|dvd|sd|xvid|divx)\b`)},
}

var qualityRank = map[string]int{
	Quality4K:      4,
	Quality1080p:   3,
	Quality720p:    2,
	Quality480p:    1,
	QualitySD:      0,
	QualityUnknown: -1,
}

// DetectQuality guesses the video quality from a caption or file name
func DetectQuality(name string) string {
	name = strings.ToLower(name)
	// file names separate tokens with dots and underscores
	name = strings.NewReplacer(".", " ", "_", " ").Replace(name)

	for _, qp := range qualityPatterns {
		if qp.pattern.MatchString(name) {
			return qp.quality
		}
	}
	return QualityUnknown
}

// CompareQuality returns 1 if q1 > q2, -1 if q1 < q2 and 0 otherwise
func CompareQuality(q1, q2 string) int {
	v1, ok := qualityRank[q1]
	if !ok {
		v1 = qualityRank[QualityUnknown]
	}
	v2, ok := qualityRank[q2]
	if !ok {
		v2 = qualityRank[QualityUnknown]
	}

	switch {
	case v1 > v2:
		return 1
	case v1 < v2:
		return -1
	}
	return 0
}
