package urlkey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/insights/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare host", "example.com", "https://example.com"},
		{"upper case http with slash", "HTTP://Example.com/", "https://example.com"},
		{"whitespace", "  https://example.com  ", "https://example.com"},
		{"fragment dropped", "https://example.com/about#team", "https://example.com/about"},
		{"trailing slashes", "https://example.com/blog///", "https://example.com/blog"},
		{"default port", "http://example.com:80/", "https://example.com"},
		{"custom port kept", "example.com:8080/x", "https://example.com:8080/x"},
		{"query kept", "Example.com/Search?Q=Go", "https://example.com/search?q=go"},
		{"www kept", "www.example.com", "https://www.example.com"},
		{"url in query without scheme", "example.com/login?next=https://example.com/home", "https://example.com/login?next=https://example.com/home"},
		{"ipv6 loopback", "https://[::1]/", "https://[::1]"},
		{"ipv6 with path", "http://[2001:DB8::1]/x", "https://[2001:db8::1]/x"},
		{"ipv6 custom port", "[2001:db8::1]:8080/x", "https://[2001:db8::1]:8080/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"example.com",
		"HTTP://Example.com/",
		"https://blog.example.com/Path/To/Page/?a=1#frag",
		"www.example.co.uk:8443/a%2Fb/",
		"http://example.com:443",
		"https://[::1]/",
		"http://[2001:db8::1]/x",
		"[2001:db8::1]:8080",
		"example.com/login?next=https://example.com/home",
	}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err, in)
		twice, err := Normalize(once)
		require.NoError(t, err, in)
		assert.Equal(t, once, twice, in)
	}
}

func TestNormalizeEquivalentSpellings(t *testing.T) {
	a, err := Normalize("HTTP://Example.com/")
	require.NoError(t, err)
	b, err := Normalize("example.com")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeKeepsSubdomainsDistinct(t *testing.T) {
	a, err := Normalize("blog.example.com")
	require.NoError(t, err)
	b, err := Normalize("example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://example.com", "https://"} {
		_, err := Normalize(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, models.ErrInvalidURL), in)
	}
}

func TestKey(t *testing.T) {
	key, err := Key("analysis", "Example.com/", models.StrategyMobile)
	require.NoError(t, err)
	assert.Equal(t, "analysis:mobile:https://example.com", key)

	other, err := Key("analysis", "example.com", models.StrategyDesktop)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
	assert.Equal(t, "analysis:", Prefix("analysis"))
}

func TestDomainAndRootDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://www.Example.com/about"))
	assert.Equal(t, "blog.example.com", Domain("blog.example.com"))
	assert.Equal(t, "example.co.uk", RootDomain("shop.example.co.uk"))
	assert.Equal(t, "127.0.0.1", RootDomain("http://127.0.0.1:8080"))
	assert.Equal(t, "::1", RootDomain("http://[::1]/"))
}
