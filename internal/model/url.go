package model

import (
	"fmt"
	"net/url"
	"strings"
)

// CanonicalURL は重複判定に使用する正規化済みURLを返す。
// スキームとホストを小文字化し、フラグメントとデフォルトポートを除去する。
// http/https以外のスキームやホストが空のURLはエラーとする。
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("disallowed scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("empty host in URL: %s", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}
