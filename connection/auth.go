package connection

import "encoding/base64"

// basicToken returns base64(user:pass) over the UTF-8 bytes of user and
// pass, exactly as http basic auth requires.
func basicToken(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
