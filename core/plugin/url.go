package plugin

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"Musync/model"
)

// ErrUnsupportedURL is returned for URLs no registered source claims.
var ErrUnsupportedURL = errors.New("unsupported url")

// HostLookup finds the source owning a host.
type HostLookup interface {
	SourceForHost(host string) (*model.Source, bool)
}

// URLResolver 把外部 URL 映射到来源并做规范化
type URLResolver struct {
	hosts HostLookup
}

// NewURLResolver 创建 URL 解析器
func NewURLResolver(hosts HostLookup) *URLResolver {
	return &URLResolver{hosts: hosts}
}

func parseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}
	return u, nil
}

func bareHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return host
}

// Source returns the source id for a URL.
func (r *URLResolver) Source(raw string) (string, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}
	s, ok := r.hosts.SourceForHost(bareHost(u))
	if !ok {
		return "", fmt.Errorf("%w: no source for host %s", ErrUnsupportedURL, u.Hostname())
	}
	return s.ID, nil
}

// NormalizeFileURL 返回文件的规范 URL
func (r *URLResolver) NormalizeFileURL(raw string) (string, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}
	if _, ok := r.hosts.SourceForHost(bareHost(u)); !ok {
		return "", fmt.Errorf("%w: no source for host %s", ErrUnsupportedURL, u.Hostname())
	}

	switch bareHost(u) {
	case "youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "https://www.youtube.com/watch?v=" + id, nil
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			return "https://www.youtube.com/watch?v=" + path.Base(u.Path), nil
		}
		return "", fmt.Errorf("%w: youtube url without video id", ErrUnsupportedURL)
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return "", fmt.Errorf("%w: youtube url without video id", ErrUnsupportedURL)
		}
		return "https://www.youtube.com/watch?v=" + id, nil
	case "soundcloud.com":
		return "https://soundcloud.com" + strings.ToLower(strings.TrimRight(u.Path, "/")), nil
	}
	return canonical(u), nil
}

// NormalizePlaylistURL 返回歌单的规范 URL
func (r *URLResolver) NormalizePlaylistURL(raw string) (string, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return "", err
	}
	if _, ok := r.hosts.SourceForHost(bareHost(u)); !ok {
		return "", fmt.Errorf("%w: no source for host %s", ErrUnsupportedURL, u.Hostname())
	}

	switch bareHost(u) {
	case "youtube.com", "music.youtube.com":
		id := u.Query().Get("list")
		if id == "" {
			return "", fmt.Errorf("%w: youtube url without playlist id", ErrUnsupportedURL)
		}
		return "https://www.youtube.com/playlist?list=" + id, nil
	case "soundcloud.com":
		return "https://soundcloud.com" + strings.ToLower(strings.TrimRight(u.Path, "/")), nil
	}
	return canonical(u), nil
}

// canonical drops fragments and tracking parameters and sorts the rest.
func canonical(u *url.URL) string {
	q := u.Query()
	names := make([]string, 0, len(q))
	for k := range q {
		if strings.HasPrefix(k, "utm_") || k == "si" || k == "feature" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(bareHost(u))
	p := strings.TrimRight(u.EscapedPath(), "/")
	b.WriteString(p)
	for i, k := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		vals := q[k]
		sort.Strings(vals)
		for j, v := range vals {
			if j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
