package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenylist_Matches(t *testing.T) {
	d, err := NewDenylist([]string{"*.internal.example", "  Intranet.Corp "})
	require.NoError(t, err)

	tests := []struct {
		domain string
		want   bool
	}{
		{"localhost", true},
		{"app.localhost", true},
		{"127.0.0.1", true},
		{"127.12.0.3", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"[::1]", true},
		{"d1234.cloudfront.net", true},
		{"cdn.jsdelivr.net", true},
		{"user.github.io", true},
		{"my-site.netlify.app", true},
		{"docs.pages.dev", true},
		{"wiki.internal.example", true},
		{"intranet.corp", true},
		{"example.com", false},
		{"github.com", false},
		{"cloudfront.net", false},
		{"10.0.0.1", true},
		{"192.168.1.20", true},
		{"169.254.169.254", true},
		{"[fe80::1]", true},
		{"127.example.com", false},
		{"93.184.216.34", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Matches(tt.domain))
		})
	}
}

func TestDenylist_InvalidPattern(t *testing.T) {
	_, err := NewDenylist([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestDenylist_PatternsIncludeExtras(t *testing.T) {
	d, err := NewDenylist([]string{"Foo.Example", ""})
	require.NoError(t, err)
	assert.Contains(t, d.Patterns(), "foo.example")
	assert.Len(t, d.Patterns(), len(builtinDenylist)+1)
}

func TestDomainFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.Example.com/favicon.ico", "example.com"},
		{"https://example.com:8443/icon.png", "example.com"},
		{"http://sub.example.com", "sub.example.com"},
		{"https://www.www.example.com/", "www.example.com"},
		{"example.com/favicon.ico", "example.com"},
		{"https://bücher.de/favicon.ico", "xn--bcher-kva.de"},
		{"http://[::1]:8080/", "::1"},
		{"https://example.com./", "example.com"},
		{"", ""},
		{"not a url", ""},
		{"mailto:someone@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainFromURL(tt.url))
		})
	}
}
