package e2etest

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/myrjola/compassmystery/internal/errors"
)

// loopbackCookieJar drops the Secure flag of cookies set by loopback hosts so that a test server on plain HTTP
// keeps the player's session cookie. Other hosts are handled like any [http.CookieJar].
type loopbackCookieJar struct {
	jar *cookiejar.Jar
}

func newLoopbackCookieJar() (*loopbackCookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}
	return &loopbackCookieJar{jar: jar}, nil
}

func (j *loopbackCookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if isLoopback(u.Hostname()) {
		for _, cookie := range cookies {
			cookie.Secure = false
		}
	}
	j.jar.SetCookies(u, cookies)
}

func (j *loopbackCookieJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
