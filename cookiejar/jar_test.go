package cookiejar

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestJarDomainAndPathMatching(t *testing.T) {
	t.Parallel()
	jar := New()
	jar.SetCookies(mustURL(t, "https://example.com/api"), []string{"session=abc; Domain=example.com; Path=/api"})

	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/api", "session=abc"},
		{"https://example.com/api/x", "session=abc"},
		{"https://sub.example.com/api", "session=abc"},
		{"https://example.com/other", ""},
	}
	for _, c := range cases {
		got := jar.Cookies(mustURL(t, c.url))
		assert.Equal(t, c.want, got, c.url)
	}
}

func TestJarSecureCookieDroppedOnPlainHTTP(t *testing.T) {
	t.Parallel()
	jar := New()
	jar.SetCookies(mustURL(t, "https://example.com/api"), []string{"session=abc; Domain=example.com; Path=/api; Secure"})

	assert.Equal(t, "session=abc", jar.Cookies(mustURL(t, "https://example.com/api")))
	assert.Equal(t, "", jar.Cookies(mustURL(t, "http://example.com/api")))
}

func TestJarMaxAgeExpiry(t *testing.T) {
	t.Parallel()
	jar := New()
	now := time.Now()
	jar.SetClock(func() time.Time { return now })
	jar.SetCookies(mustURL(t, "https://example.com/"), []string{"a=1; Max-Age=5"})
	assert.Equal(t, "a=1", jar.Cookies(mustURL(t, "https://example.com/")))

	jar.SetClock(func() time.Time { return now.Add(10 * time.Second) })
	assert.Equal(t, "", jar.Cookies(mustURL(t, "https://example.com/")))
}

func TestJarInsertReplaces(t *testing.T) {
	t.Parallel()
	jar := New()
	u := mustURL(t, "https://example.com/")
	jar.SetCookies(u, []string{"a=1"})
	jar.SetCookies(u, []string{"a=2"})
	assert.Equal(t, "a=2", jar.Cookies(u))
}

func TestJarRejectsMismatchedDomain(t *testing.T) {
	t.Parallel()
	jar := New()
	jar.SetCookies(mustURL(t, "https://example.com/"), []string{"a=1; Domain=evil.com"})
	assert.Equal(t, "", jar.Cookies(mustURL(t, "https://example.com/")))
}

func TestJarSortByPathLengthThenCreation(t *testing.T) {
	t.Parallel()
	jar := New()
	u := mustURL(t, "https://example.com/a/b")
	jar.SetCookies(u, []string{"short=1; Path=/"})
	jar.SetCookies(u, []string{"long=2; Path=/a/b"})

	assert.Equal(t, "long=2; short=1", jar.Cookies(u))
}
