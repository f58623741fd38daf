package cookiejar

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetCookieBasic(t *testing.T) {
	u, err := url.Parse("https://example.com/app/page")
	require.NoError(t, err)
	c, err := parseSetCookie("session=abc123; Path=/app; HttpOnly; Secure; SameSite=Lax", u)
	require.NoError(t, err)
	assert.Equal(t, "session", c.Name)
	assert.Equal(t, "abc123", c.Value)
	assert.Equal(t, "example.com", c.Domain)
	assert.Equal(t, "/app", c.Path)
	assert.True(t, c.HTTPOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, SameSiteLax, c.SameSite)
}

func TestParseSetCookieDefaultPathIsDirectoryOfRequestPath(t *testing.T) {
	u, err := url.Parse("https://example.com/a/b/c")
	require.NoError(t, err)
	c, err := parseSetCookie("k=v", u)
	require.NoError(t, err)
	assert.Equal(t, "/a/b", c.Path)
}

func TestParseSetCookieDefaultPathRootWhenNone(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	c, err := parseSetCookie("k=v", u)
	require.NoError(t, err)
	assert.Equal(t, "/", c.Path)
}

func TestParseSetCookieRejectsMismatchedDomain(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	_, err = parseSetCookie("k=v; Domain=evil.com", u)
	assert.Error(t, err)
}

func TestParseSetCookieAcceptsParentDomain(t *testing.T) {
	u, err := url.Parse("https://sub.example.com/")
	require.NoError(t, err)
	c, err := parseSetCookie("k=v; Domain=example.com", u)
	require.NoError(t, err)
	assert.Equal(t, "example.com", c.Domain)
}

func TestParseSetCookieURLDecodesValueWithPercent(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	c, err := parseSetCookie("k=hello%20world", u)
	require.NoError(t, err)
	assert.Equal(t, "hello world", c.Value)
}

func TestParseSetCookieRejectsInvalidName(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	_, err = parseSetCookie("bad name=v", u)
	assert.Error(t, err)
}

func TestParseSetCookieRejectsMissingNameValue(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	_, err = parseSetCookie("justaname", u)
	assert.Error(t, err)
}

func TestParseSetCookieMaxAgeNegative(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	c, err := parseSetCookie("k=v; Max-Age=-1", u)
	require.NoError(t, err)
	require.NotNil(t, c.MaxAge)
	assert.Equal(t, -1, *c.MaxAge)
}

func TestParseSetCookiePriorityAndPartitioned(t *testing.T) {
	u, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	c, err := parseSetCookie("k=v; Priority=High; Partitioned", u)
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, c.Priority)
	assert.True(t, c.Partitioned)
}

func TestDomainIsSuffixOfHost(t *testing.T) {
	assert.True(t, domainIsSuffixOfHost("example.com", "example.com"))
	assert.True(t, domainIsSuffixOfHost("example.com", "sub.example.com"))
	assert.False(t, domainIsSuffixOfHost("example.com", "notexample.com"))
	assert.False(t, domainIsSuffixOfHost("example.com", "evil.com"))
}
