package http

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(8*1024, 1<<20, clock.NewMock())
}

func TestParseMinimalGet(t *testing.T) {
	p := newTestParser()

	res := p.Parse("10.0.0.1:5000", []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	require.True(t, res.Complete)
	require.Nil(t, res.Err)
	assert.Equal(t, "GET", res.Method)
	assert.Equal(t, "/index.html", res.URI)
	assert.Equal(t, "HTTP/1.1", res.Version)
	assert.Equal(t, []string{"example.com"}, res.Headers.Values("HOST"))
	assert.Empty(t, res.Body)
	assert.Zero(t, p.Pending())
}

func TestParsePostWholeBody(t *testing.T) {
	p := newTestParser()
	body := `{"name":"John","age":30}`

	raw := "POST /api/users HTTP/1.1\r\n" +
		"Content-Length: 24\r\n" +
		"\r\n" + body

	res := p.Parse("10.0.0.1:5000", []byte(raw))

	require.True(t, res.Complete)
	require.Nil(t, res.Err)
	assert.Equal(t, body, string(res.Body))
	assert.Zero(t, p.Pending())
}

func TestParsePostSplitBody(t *testing.T) {
	p := newTestParser()
	body := `{"name":"John","age":30}`
	raw := "POST /u HTTP/1.1\r\nContent-Length: 24\r\n\r\n" + body

	first := p.Parse("10.0.0.1:5000", []byte(raw[:44]))
	require.False(t, first.Complete)
	assert.Equal(t, "POST", first.Method)
	assert.Equal(t, 1, p.Pending())

	second := p.Parse("10.0.0.1:5000", []byte(raw[44:]))
	require.True(t, second.Complete)
	require.Nil(t, second.Err)
	assert.Equal(t, body, string(second.Body))
	assert.Zero(t, p.Pending())
}

func TestParseSplitDeliveryDeterminism(t *testing.T) {
	body := strings.Repeat("x", 64)
	raw := "POST /data HTTP/1.1\r\nContent-Length: 64\r\nHost: a\r\n\r\n" + body
	headerEnd := strings.Index(raw, "\r\n\r\n") + 4

	whole := newTestParser().Parse("c", []byte(raw))
	require.True(t, whole.Complete)
	require.Nil(t, whole.Err)

	// Any partition at or after the end of the header block yields the
	// same final result.
	for cut := headerEnd; cut < len(raw); cut++ {
		p := newTestParser()
		res := p.Parse("c", []byte(raw[:cut]))
		for i := cut; i < len(raw); i++ {
			require.False(t, res.Complete, "premature completion at cut %d", cut)
			res = p.Parse("c", []byte{raw[i]})
		}
		require.True(t, res.Complete, "cut %d", cut)
		require.Nil(t, res.Err)
		assert.Equal(t, whole.Method, res.Method)
		assert.Equal(t, whole.URI, res.URI)
		assert.Equal(t, whole.Version, res.Version)
		assert.Equal(t, string(whole.Body), string(res.Body))
	}
}

func TestParseBadRequestLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"two tokens", "GET /\r\n\r\n"},
		{"four tokens", "GET / HTTP/1.1 extra\r\n\r\n"},
		{"empty", "\r\n\r\n"},
		{"blank line", "   \r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestParser().Parse("c", []byte(tt.raw))
			require.True(t, res.Complete)
			require.NotNil(t, res.Err)
			assert.Equal(t, CodeBadMethodOrURIOrVersion, res.Err.Code)
		})
	}
}

func TestParseBareLFTolerated(t *testing.T) {
	res := newTestParser().Parse("c", []byte("GET / HTTP/1.1\nHost: a\n\n"))
	require.True(t, res.Complete)
	require.Nil(t, res.Err)
	assert.Equal(t, []string{"a"}, res.Headers.Values("Host"))
}

func TestParseLoneCRNotTerminator(t *testing.T) {
	// The CR embedded in the value is not a line break; the header
	// value keeps it.
	res := newTestParser().Parse("c", []byte("GET / HTTP/1.1\r\nX-A: b\rc\r\n\r\n"))
	require.True(t, res.Complete)
	require.Nil(t, res.Err)
	assert.Equal(t, []string{"b\rc"}, res.Headers.Values("X-A"))
}

func TestParseHeaderNormalization(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n" +
		"x-custom:  padded value \t\r\n" +
		"X-Custom: second\r\n" +
		"garbage line without colon\r\n" +
		"\r\n"

	res := newTestParser().Parse("c", []byte(raw))
	require.True(t, res.Complete)
	require.Nil(t, res.Err)

	assert.Equal(t, []string{"padded value", "second"}, res.Headers.Values("X-CUSTOM"))
	for _, f := range res.Headers.Fields() {
		assert.Equal(t, strings.ToUpper(f.Name), f.Name)
	}
	assert.Equal(t, 2, res.Headers.Len())
}

func TestParseHeaderBudget(t *testing.T) {
	// Budget counts name+value bytes, not wire bytes.
	p := NewParser(20, 1<<20, clock.NewMock())

	// name(3) + value(17) == 20: accepted.
	ok := p.Parse("a", []byte("GET / HTTP/1.1\r\nX-A: "+strings.Repeat("v", 17)+"\r\n\r\n"))
	require.True(t, ok.Complete)
	require.Nil(t, ok.Err)

	// One byte over.
	bad := p.Parse("b", []byte("GET / HTTP/1.1\r\nX-A: "+strings.Repeat("v", 18)+"\r\n\r\n"))
	require.True(t, bad.Complete)
	require.NotNil(t, bad.Err)
	assert.Equal(t, CodeBadHeadersTooLarge, bad.Err.Code)
}

func TestParseContentLengthZero(t *testing.T) {
	res := newTestParser().Parse("c", []byte("POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n"))
	require.True(t, res.Complete)
	require.Nil(t, res.Err)
	assert.Empty(t, res.Body)
}

func TestParseRepeatedContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 3\r\nContent-Length: 3\r\n\r\nabc"
	res := newTestParser().Parse("c", []byte(raw))
	require.True(t, res.Complete)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeBadRepeatedLengthOrEncoding, res.Err.Code)
}

func TestParseContentLengthWithTransferEncoding(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 3\r\nTransfer-Encoding: gzip\r\n\r\nabc"
	res := newTestParser().Parse("c", []byte(raw))
	require.True(t, res.Complete)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeBadRepeatedLengthOrEncoding, res.Err.Code)
}

func TestParseChunkedUnsupported(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: Chunked\r\n\r\n"
	res := newTestParser().Parse("c", []byte(raw))
	require.True(t, res.Complete)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeUnsupportedChunkedEncoding, res.Err.Code)
}

func TestParseBodyTooLargeSingleShot(t *testing.T) {
	// Content-Length 500, 1000 bytes delivered.
	raw := "POST / HTTP/1.1\r\nContent-Length: 500\r\n\r\n" + strings.Repeat("x", 1000)
	res := newTestParser().Parse("c", []byte(raw))
	require.True(t, res.Complete)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeBadContentTooLarge, res.Err.Code)
}

func TestParseBodyTooLargeAccumulated(t *testing.T) {
	p := newTestParser()

	first := p.Parse("c", []byte("POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"))
	require.False(t, first.Complete)

	second := p.Parse("c", []byte("defghijklmn")) // 3 + 11 > 10
	require.True(t, second.Complete)
	require.NotNil(t, second.Err)
	assert.Equal(t, CodeBadContentTooLarge, second.Err.Code)
	assert.Zero(t, p.Pending())
}

func TestParseBodyBudgetBoundary(t *testing.T) {
	p := NewParser(8*1024, 8, clock.NewMock())

	exact := p.Parse("a", []byte("POST / HTTP/1.1\r\nContent-Length: 8\r\n\r\n12345678"))
	require.True(t, exact.Complete)
	require.Nil(t, exact.Err)
	assert.Equal(t, "12345678", string(exact.Body))

	over := p.Parse("b", []byte("POST / HTTP/1.1\r\nContent-Length: 9\r\n\r\n123456789"))
	require.True(t, over.Complete)
	require.NotNil(t, over.Err)
	assert.Equal(t, CodeBadContentTooLarge, over.Err.Code)
}

func TestParseBodyBoundInvariant(t *testing.T) {
	p := newTestParser()

	res := p.Parse("c", []byte("POST / HTTP/1.1\r\nContent-Length: 100\r\n\r\n"))
	require.False(t, res.Complete)

	for i := 0; i < 9; i++ {
		res = p.Parse("c", []byte(strings.Repeat("x", 10)))
		require.False(t, res.Complete)
	}

	res = p.Parse("c", []byte(strings.Repeat("x", 10)))
	require.True(t, res.Complete)
	require.Nil(t, res.Err)
	assert.Len(t, res.Body, 100)
}

func TestParseBadContentLengthValue(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n"
	res := newTestParser().Parse("c", []byte(raw))
	require.True(t, res.Complete)
	require.NotNil(t, res.Err)
}

func TestParseIndependentConnections(t *testing.T) {
	p := newTestParser()

	a := p.Parse("a", []byte("POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nab"))
	require.False(t, a.Complete)

	b := p.Parse("b", []byte("GET /other HTTP/1.1\r\n\r\n"))
	require.True(t, b.Complete)
	assert.Equal(t, "/other", b.URI)

	done := p.Parse("a", []byte("cd"))
	require.True(t, done.Complete)
	assert.Equal(t, "abcd", string(done.Body))
}

func TestParseForget(t *testing.T) {
	p := newTestParser()

	res := p.Parse("c", []byte("POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nab"))
	require.False(t, res.Complete)
	require.Equal(t, 1, p.Pending())

	p.Forget("c")
	assert.Zero(t, p.Pending())

	// The next chunk begins a new request rather than continuing.
	fresh := p.Parse("c", []byte("GET / HTTP/1.1\r\n\r\n"))
	require.True(t, fresh.Complete)
	assert.Equal(t, "GET", fresh.Method)
}

func TestCleanupIdle(t *testing.T) {
	mock := clock.NewMock()
	p := NewParser(8*1024, 1<<20, mock)

	res := p.Parse("stale", []byte("POST / HTTP/1.1\r\nContent-Length: 50\r\n\r\nab"))
	require.False(t, res.Complete)

	mock.Add(10 * time.Second)
	fresh := p.Parse("fresh", []byte("POST / HTTP/1.1\r\nContent-Length: 50\r\n\r\nab"))
	require.False(t, fresh.Complete)

	var closed []string
	p.CleanupIdle(5*time.Second, func(id string) { closed = append(closed, id) })

	assert.Equal(t, []string{"stale"}, closed)
	assert.Equal(t, 1, p.Pending())
}

func TestCleanupIdleRefreshedByActivity(t *testing.T) {
	mock := clock.NewMock()
	p := NewParser(8*1024, 1<<20, mock)

	res := p.Parse("c", []byte("POST / HTTP/1.1\r\nContent-Length: 50\r\n\r\na"))
	require.False(t, res.Complete)

	mock.Add(4 * time.Second)
	p.Parse("c", []byte("b")) // refreshes last activity
	mock.Add(4 * time.Second)

	var closed []string
	p.CleanupIdle(5*time.Second, func(id string) { closed = append(closed, id) })
	assert.Empty(t, closed)
	assert.Equal(t, 1, p.Pending())
}

// Re-serializing a parsed request with canonical framing and re-parsing
// it yields an identical request.
func TestParseRoundTrip(t *testing.T) {
	raw := "PUT /things/42?q=a HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"X-Tag: one\r\n" +
		"X-Tag: two\r\n" +
		"Content-Length: 5\r\n" +
		"\r\nhello"

	first := newTestParser().Parse("c", []byte(raw))
	require.True(t, first.Complete)
	require.Nil(t, first.Err)

	var b strings.Builder
	b.WriteString(first.Method + " " + first.URI + " " + first.Version + "\r\n")
	for _, f := range first.Headers.Fields() {
		b.WriteString(f.Name + ": " + f.Value + "\r\n")
	}
	b.WriteString("\r\n")
	b.Write(first.Body)

	second := newTestParser().Parse("c", []byte(b.String()))
	require.True(t, second.Complete)
	require.Nil(t, second.Err)

	assert.Equal(t, first.Method, second.Method)
	assert.Equal(t, first.URI, second.URI)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Headers.Fields(), second.Headers.Fields())
	assert.Equal(t, first.Body, second.Body)
}
