package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmp(t *testing.T) {
	testCases := []struct {
		a, b Version
		cmp  int
	}{
		{a: Version{0, 0}, b: Version{1, 0}, cmp: -1},
		{a: Version{1, 0}, b: Version{1, 1}, cmp: -1},
		{a: Version{1, 9}, b: Version{2, 0}, cmp: -1},
		{a: Version{1, 0}, b: Version{1, 0}, cmp: 0},
		{a: Version{1, 1}, b: Version{1, 0}, cmp: 1},
		{a: Version{2, 0}, b: Version{1, 7}, cmp: 1},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.cmp, VersionCmp(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
		assert.Equal(t, tc.cmp == -1, tc.a.Before(tc.b), "%s before %s", tc.a, tc.b)
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Patch: 2}, v)
	assert.Equal(t, "1.2", v.String())

	for _, bad := range []string{"", "1", "1.2.3", "a.1", "1.b"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}
