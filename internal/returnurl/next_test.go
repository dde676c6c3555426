/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package returnurl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNext(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		expected string
	}{
		{
			name:     "unencoded return URL with its own query",
			rawQuery: "next=https://chat.example.org/talks/42?tab=schedule&day=2",
			expected: "https://chat.example.org/talks/42?tab=schedule&day=2",
		},
		{
			name:     "relative path",
			rawQuery: "next=/talks/42?tab=schedule",
			expected: "/talks/42?tab=schedule",
		},
		{
			name:     "encoded return URL",
			rawQuery: "next=" + url.QueryEscape("https://chat.example.org/talks/42?tab=schedule"),
			expected: "https://chat.example.org/talks/42?tab=schedule",
		},
		{
			name:     "next after another parameter",
			rawQuery: "lang=en&next=%2Ftalks%2F42",
			expected: "/talks/42",
		},
		{
			name:     "no next",
			rawQuery: "lang=en",
			expected: "",
		},
		{
			name:     "empty query",
			rawQuery: "",
			expected: "",
		},
		{
			name:     "empty next",
			rawQuery: "next=",
			expected: "",
		},
		{
			name:     "broken escape",
			rawQuery: "next=%zz",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseNext(tt.rawQuery))
		})
	}
}

func TestParseNext_InvertsBuild(t *testing.T) {
	b := newTestBuilder(t)
	ctx := NewForwardedRequestContext(
		"https",
		[]string{"indico.example.org", "chat.example.org"},
		"/talks/42?tab=schedule",
		"day=2",
		testCanonicalHost,
	)

	result, err := b.Build(ctx, false, "")
	require.NoError(t, err)
	redirect, ok := result.(LoginRedirect)
	require.True(t, ok)

	loginURL, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, b.ReturnURL(ctx), ParseNext(loginURL.RawQuery))
}
