package ir

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETagDeterminism(t *testing.T) {
	a := IRObject{"Id": IRInt(1), "Name": IRString("Contoso"), "Notes": IRNull{}}
	b := IRObject{"Notes": IRNull{}, "Name": IRString("Contoso"), "Id": IRInt(1)}

	tagA, err := ETag(a)
	require.NoError(t, err)
	tagB, err := ETag(b)
	require.NoError(t, err)
	assert.Equal(t, tagA, tagB)
	assert.Regexp(t, regexp.MustCompile(`^W/"[0-9a-f]{32}"$`), tagA)
}

func TestETagChangesWithContent(t *testing.T) {
	a := MustETag(IRObject{"Id": IRInt(1), "Name": IRString("a")})
	b := MustETag(IRObject{"Id": IRInt(1), "Name": IRString("b")})
	assert.NotEqual(t, a, b)

	// An explicit null differs from an absent property.
	c := MustETag(IRObject{"Id": IRInt(1)})
	d := MustETag(IRObject{"Id": IRInt(1), "Name": IRNull{}})
	assert.NotEqual(t, c, d)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainETag, data), hashWithDomain(DomainKey, data))
	assert.Len(t, hashWithDomain(DomainKey, data), 64)
}

func TestKeyString(t *testing.T) {
	s, err := KeyString(IRObject{"Id": IRInt(42)})
	require.NoError(t, err)
	assert.Equal(t, "42", s)

	s, err = KeyString(IRObject{"Code": IRString("ALFKI")})
	require.NoError(t, err)
	assert.Equal(t, `"ALFKI"`, s)

	s, err = KeyString(IRObject{"OrderId": IRInt(1), "Line": IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, `{"Line":2,"OrderId":1}`, s)
}

func TestKeyHashStable(t *testing.T) {
	h1, err := KeyHash(IRObject{"Id": IRInt(1)})
	require.NoError(t, err)
	h2, err := KeyHash(IRObject{"Id": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
