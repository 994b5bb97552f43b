package httputil

import (
	"errors"
	"net/url"
)

const redactedPath = "/***"

// RedactURLError hides the request URL carried by transport and URL parse
// errors. Webhook and bot API URLs hold their credentials in the path, and
// these errors end up in logs and operator alerts.
func RedactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	return &url.Error{Op: urlErr.Op, URL: RedactURL(urlErr.URL), Err: urlErr.Err}
}

// RedactURL keeps only the scheme and host of raw.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://" + u.Host + redactedPath
}
