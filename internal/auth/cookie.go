package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sort"
	"strings"
)

type browserCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ReadCookieFile loads the cookies exported by a browser session. The file
// is either a JSON object of name to value or a JSON array of objects with
// name and value, as written by browser automation tools.
//
// Every name in required must be present.
func ReadCookieFile(path string, required []string) ([]*http.Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: reading cookie file: %w", err)
	}
	cookies, err := ParseCookies(b)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing cookie file %s: %w", path, err)
	}

	var missing []string
	for _, name := range required {
		if !slices.ContainsFunc(cookies, func(c *http.Cookie) bool { return c.Name == name }) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("auth: cookie file %s is missing %s", path, strings.Join(missing, ", "))
	}
	return cookies, nil
}

func ParseCookies(b []byte) ([]*http.Cookie, error) {
	var list []browserCookie
	if err := json.Unmarshal(b, &list); err != nil {
		var m map[string]string
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		for name, value := range m {
			list = append(list, browserCookie{Name: name, Value: value})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}

	res := make([]*http.Cookie, 0, len(list))
	for _, c := range list {
		if c.Name == "" {
			continue
		}
		res = append(res, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return res, nil
}

// CookieTransport adds a fixed set of cookies to every request.
type CookieTransport struct {
	Base    http.RoundTripper
	Cookies []*http.Cookie
}

func (t *CookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for _, c := range t.Cookies {
		req.AddCookie(c)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
