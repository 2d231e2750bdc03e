package connection

// CacheProfile is the per-endpoint caching policy: how long an entry is
// fresh, whether that freshness aligns to wall-clock boundaries, which
// headers survive into the cached envelope, and whether bodies are
// encrypted at rest.
type CacheProfile struct {
	DefaultExpirationInSeconds                 int
	ExpirationIsOnInterval                     bool
	OverrideOriginHeaderExpiration              bool
	HeadersToRetain                             []string
	HostID                                      string
	PathID                                      string
	Encrypt                                     bool
	DefaultExpirationExtensionOnErrorInSeconds int
}

// CacheProfileFromMap builds a CacheProfile from a loosely-typed map,
// accepting both canonical keys and the legacy aliases named in the data
// model: defaultExpiresInSeconds, expiresIsOnInterval, ignoreOriginHeaderExpires,
// defaultExpiresExtensionOnErrorInSeconds.
func CacheProfileFromMap(m map[string]interface{}) CacheProfile {
	p := CacheProfile{}

	p.DefaultExpirationInSeconds = firstInt(m, "defaultExpirationInSeconds", "defaultExpiresInSeconds")
	p.ExpirationIsOnInterval = firstBool(m, "expirationIsOnInterval", "expiresIsOnInterval")
	p.OverrideOriginHeaderExpiration = firstBool(m, "overrideOriginHeaderExpiration", "ignoreOriginHeaderExpires")
	p.HostID, _ = m["hostId"].(string)
	p.PathID, _ = m["pathId"].(string)
	p.Encrypt, _ = m["encrypt"].(bool)
	p.DefaultExpirationExtensionOnErrorInSeconds = firstInt(m,
		"defaultExpirationExtensionOnErrorInSeconds", "defaultExpiresExtensionOnErrorInSeconds")

	if raw, ok := m["headersToRetain"].([]string); ok {
		p.HeadersToRetain = append([]string(nil), raw...)
	} else if raw, ok := m["headersToRetain"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				p.HeadersToRetain = append(p.HeadersToRetain, s)
			}
		}
	}

	return p
}

func firstInt(m map[string]interface{}, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

func firstBool(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k].(bool); ok {
			return v
		}
	}
	return false
}
