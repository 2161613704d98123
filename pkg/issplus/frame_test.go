package issplus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMarshal(t *testing.T) {
	f := &Frame{
		Command: "SUBSCRIBE",
		Headers: map[string]string{
			"receipt":     "abc",
			"id":          "abc",
			"destination": "MXSE.lasttrades",
		},
	}
	want := "SUBSCRIBE\ndestination:MXSE.lasttrades\nid:abc\nreceipt:abc\n\n\x00"
	assert.Equal(t, []byte(want), f.Marshal())
}

func TestFrameMarshalAddsContentLength(t *testing.T) {
	f := &Frame{
		Command: "MESSAGE",
		Headers: map[string]string{"subscription": "s1"},
		Body:    []byte(`{"n":1}`),
	}
	want := "MESSAGE\nsubscription:s1\ncontent-length:7\n\n{\"n\":1}\x00"
	assert.Equal(t, []byte(want), f.Marshal())
}

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{
		Command: "REQUEST",
		Headers: map[string]string{
			"id":          "11b698c2-6a59-4c5b-bb5c-b0e0b9b2b2d4",
			"destination": "SEARCH.ticker",
			"selector":    `pattern="SBER"`,
		},
		Body: []byte(`{"columns":["secid"],"data":[["SBER"]]}`),
	}

	parsed, err := ParseFrame(f.Marshal())
	require.NoError(t, err)
	assert.Equal(t, f.Command, parsed.Command)
	assert.Equal(t, f.Body, parsed.Body)
	for name, value := range f.Headers {
		assert.Equal(t, value, parsed.Header(name), "header %s", name)
	}
}

func TestParseFrameConnected(t *testing.T) {
	raw := "CONNECTED\nversion:1.0\n\n{\"structure\":{\"MXSE\":{}}}\x00"

	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", f.Command)
	assert.Equal(t, "1.0", f.Header("version"))
	assert.JSONEq(t, `{"structure":{"MXSE":{}}}`, string(f.Body))
}

func TestParseFrameHeaderValueWithColon(t *testing.T) {
	raw := "MESSAGE\nsubscription:s1\ntimestamp:10:05:00\n\n\x00"

	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "10:05:00", f.Header("timestamp"))
	assert.Empty(t, f.Body)
}

func TestParseFrameContentLengthKeepsNUL(t *testing.T) {
	raw := "MESSAGE\ncontent-length:3\n\na\x00b\x00"

	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte("a\x00b"), f.Body)
}

func TestParseFrameCRLF(t *testing.T) {
	raw := "CONNECTED\r\nversion:1.0\r\n\r\nbody\x00"

	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", f.Command)
	assert.Equal(t, "1.0", f.Header("version"))
	assert.Equal(t, []byte("body"), f.Body)
}

func TestParseFrameErrors(t *testing.T) {
	cases := map[string]string{
		"missing terminator": "MESSAGE\nfoo:bar\x00",
		"empty command":      "\nfoo:bar\n\n\x00",
		"header no colon":    "MESSAGE\nnocolon\n\n\x00",
		"bad content length": "MESSAGE\ncontent-length:99\n\nhi\x00",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFrame([]byte(raw))
			assert.Error(t, err)
		})
	}
}
