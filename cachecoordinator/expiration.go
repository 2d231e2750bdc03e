package cachecoordinator

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"encore.app/connection"
	"encore.app/internal/obslog"
)

// canonical interval lengths supported by interval-aligned expiration.
const (
	intervalHour = 3600
	intervalDay  = 86400
	intervalWeek = 604800
)

// computeExpiresAt applies §4.E's expiration rule: either now+N, or
// alignment to the next wall-clock boundary for a canonical interval
// length, then (unless the profile overrides it) takes the minimum with
// whatever the upstream response's Cache-Control/Expires headers allow.
func computeExpiresAt(now time.Time, profile connection.CacheProfile, loc *time.Location, upstreamHeaders map[string]string) int64 {
	var expiresAt int64
	if !profile.ExpirationIsOnInterval {
		expiresAt = now.Add(time.Duration(profile.DefaultExpirationInSeconds) * time.Second).Unix()
	} else {
		expiresAt = alignToInterval(now, profile.DefaultExpirationInSeconds, loc)
	}

	if !profile.OverrideOriginHeaderExpiration {
		if upstreamMax, ok := upstreamExpiresAt(now, upstreamHeaders); ok && upstreamMax < expiresAt {
			expiresAt = upstreamMax
		}
	}
	return expiresAt
}

func alignToInterval(now time.Time, intervalSeconds int, loc *time.Location) int64 {
	local := now.In(loc)

	switch intervalSeconds {
	case intervalHour:
		next := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc).Add(time.Hour)
		return next.Unix()
	case intervalDay:
		next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		return next.Unix()
	case intervalWeek:
		daysUntilNextSunday := (7 - int(local.Weekday())) % 7
		if daysUntilNextSunday == 0 {
			daysUntilNextSunday = 7
		}
		next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, daysUntilNextSunday)
		return next.Unix()
	default:
		obslog.Warn("interval expiration requested for unsupported length; falling back to now+N", obslog.Fields{
			"intervalSeconds": intervalSeconds,
		})
		return now.Add(time.Duration(intervalSeconds) * time.Second).Unix()
	}
}

// upstreamExpiresAt consults Cache-Control: max-age first, then Expires.
func upstreamExpiresAt(now time.Time, headers map[string]string) (int64, bool) {
	if cc, ok := lookupHeader(headers, "Cache-Control"); ok {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.TrimSpace(directive)
			if strings.HasPrefix(strings.ToLower(directive), "max-age=") {
				secsStr := strings.TrimPrefix(directive, directive[:strings.Index(directive, "=")+1])
				if secs, err := strconv.Atoi(strings.TrimSpace(secsStr)); err == nil {
					return now.Add(time.Duration(secs) * time.Second).Unix(), true
				}
			}
		}
	}
	if exp, ok := lookupHeader(headers, "Expires"); ok {
		if t, err := http.ParseTime(exp); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
