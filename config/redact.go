package config

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Mask replaces the second half of s with asterisks.
func Mask(s string) string {
	l := len(s)
	if l == 0 {
		return s
	}
	if l == 1 {
		return "*"
	}
	h := l / 2
	return s[0:h] + strings.Repeat("*", l-h)
}

// MaskURL hides the credentials, path and query values of a URL such as
// REDIS_URL. Unparseable input is masked whole.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return Mask(raw)
	}
	var str strings.Builder
	str.WriteString(u.Scheme)
	str.WriteString("://")
	if u.User != nil {
		str.WriteString(Mask(u.User.Username()))
		if pass, ok := u.User.Password(); ok {
			str.WriteString(":")
			str.WriteString(Mask(pass))
		}
		str.WriteString("@")
	}
	str.WriteString(u.Host)
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		str.WriteString("/")
		str.WriteString(Mask(p))
	}
	var qs []string
	for k, v := range u.Query() {
		qs = append(qs, k+"="+Mask(strings.Join(v, ",")))
	}
	sort.Strings(qs)
	if len(qs) > 0 {
		str.WriteString("?")
		str.WriteString(strings.Join(qs, "&"))
	}
	return str.String()
}

// Redacted returns the effective settings keyed like the environment
// variables, with secrets masked, for display.
func (c *Config) Redacted() map[string]string {
	return map[string]string{
		"BASE_URL":          c.BaseURL,
		"REFRESH_PATH":      c.RefreshPath,
		"TOKEN":             Mask(c.Token),
		"TIMEOUT":           c.timeout.String(),
		"TRANSPORT_RETRIES": strconv.Itoa(c.TransportRetries),
		"SESSION_TTL":       c.sessionTTL.String(),
		"STORE":             c.Store,
		"STORE_PATH":        c.StorePath,
		"REDIS_URL":         MaskURL(c.RedisURL),
		"STORAGE_KEY":       c.StorageKey,
		"ENCRYPTION_KEY":    Mask(c.EncryptionKey),
		"LOG_LEVEL":         c.level.String(),
		"LOG_FORMAT":        c.LogFormat,
		"OTLP_URL":          c.OTLPURL,
		"OTLP_TOKEN":        Mask(c.OTLPToken),
	}
}
