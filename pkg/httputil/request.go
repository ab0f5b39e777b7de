package httputil

import (
	"encoding/json"
	"net/http"
)

func ReadJsonBody(r *http.Request, dst interface{}) error {
	if r.Body == http.NoBody {
		return nil
	}

	d := json.NewDecoder(r.Body)

	return d.Decode(dst)
}

// ClientIP returns the originating client address, honoring proxies.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
