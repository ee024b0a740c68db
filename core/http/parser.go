package http

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// parseStrategy selects how the body of an in-flight request is
// assembled across chunks.
type parseStrategy uint8

const (
	strategyNone parseStrategy = iota
	strategyContentLength
	strategyChunked // reserved, not implemented
)

// parseState is the per-connection accumulator held between byte
// chunks. It exists only while a request is in flight and is erased on
// completion, framing error, connection close, or idle eviction.
type parseState struct {
	connID   string
	strategy parseStrategy

	method  string
	uri     string
	version string
	headers Headers

	expectedBodyLength int
	accumulatedBody    []byte

	lastActivity time.Time
}

// Result is the outcome of feeding one chunk to the parser.
//
// Exactly one of three shapes comes back: a completed request
// (Complete && Err == nil), a framing error (Complete && Err != nil),
// or need-more-data (Complete == false; Method, URI and Version preview
// the request line parsed so far).
type Result struct {
	Complete bool
	Err      *FramingError

	Method  string
	URI     string
	Version string
	Headers Headers
	Body    []byte
}

// Parser turns per-connection byte chunks into complete requests
// without losing data across chunk boundaries. Safe for concurrent use;
// every entry point serializes on one mutex, so the state for a given
// connection evolves sequentially.
type Parser struct {
	mu      sync.Mutex
	pending map[string]*parseState

	maxHeaderSize int
	maxBodySize   int
	clock         clock.Clock
}

// NewParser creates a parser with the given header and body budgets.
func NewParser(maxHeaderSize, maxBodySize int, clk clock.Clock) *Parser {
	if clk == nil {
		clk = clock.New()
	}
	return &Parser{
		pending:       make(map[string]*parseState),
		maxHeaderSize: maxHeaderSize,
		maxBodySize:   maxBodySize,
		clock:         clk,
	}
}

// Parse consumes one chunk for the connection identified by connID (the
// canonical remote endpoint). A connection with no pending state begins
// a new request; otherwise the chunk continues the one in flight.
func (p *Parser) Parse(connID string, data []byte) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.pending[connID]; ok {
		return p.continueParsing(state, data)
	}
	return p.beginParsing(connID, data)
}

// Pending returns the number of in-flight request states.
func (p *Parser) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Forget drops any in-flight state for the connection. Called by the
// server when a connection closes mid-request.
func (p *Parser) Forget(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, connID)
}

// CleanupIdle erases every state whose last activity is older than
// maxIdle and hands its connection id to closeFn. It runs under the
// parser mutex like every other entry point.
func (p *Parser) CleanupIdle(maxIdle time.Duration, closeFn func(connID string)) {
	p.mu.Lock()
	now := p.clock.Now()
	var expired []string
	for id, state := range p.pending {
		if now.Sub(state.lastActivity) > maxIdle {
			delete(p.pending, id)
			expired = append(expired, id)
		}
	}
	p.mu.Unlock()

	// closeFn goes back through the registry, which calls into the
	// parser again; it must run outside the mutex.
	for _, id := range expired {
		closeFn(id)
	}
}

func (p *Parser) beginParsing(connID string, data []byte) Result {
	method, uri, version, rest, ok := parseRequestLine(data)
	if !ok {
		return Result{Complete: true, Err: &FramingError{Code: CodeBadMethodOrURIOrVersion}, URI: uri, Version: version}
	}

	headers, rest, ok := p.parseHeaders(rest)
	if !ok {
		return Result{Complete: true, Err: &FramingError{Code: CodeBadHeadersTooLarge}, URI: uri, Version: version}
	}

	hasContentLength := headers.Has("Content-Length")
	hasChunked := hasChunkedEncoding(headers)

	if headers.Count("Content-Length") > 1 || (hasContentLength && headers.Has("Transfer-Encoding")) {
		return Result{Complete: true, Err: &FramingError{Code: CodeBadRepeatedLengthOrEncoding}, URI: uri, Version: version, Headers: headers}
	}

	if hasChunked {
		return Result{Complete: true, Err: &FramingError{Code: CodeUnsupportedChunkedEncoding}, URI: uri, Version: version, Headers: headers}
	}

	if hasContentLength {
		raw, _ := headers.Get("Content-Length")
		length, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 63)
		if err != nil {
			return Result{Complete: true, Err: &FramingError{Code: CodeBadMethodOrURIOrVersion}, URI: uri, Version: version, Headers: headers}
		}
		return p.parseContentLengthBody(connID, method, uri, version, headers, int(length), rest)
	}

	// No body to wait for.
	return Result{Complete: true, Method: method, URI: uri, Version: version, Headers: headers}
}

func (p *Parser) continueParsing(state *parseState, data []byte) Result {
	state.lastActivity = p.clock.Now()

	if state.strategy != strategyContentLength {
		delete(p.pending, state.connID)
		return Result{Complete: true, Err: &FramingError{Code: CodeUnsupportedParseStrategy}, URI: state.uri, Version: state.version}
	}

	state.accumulatedBody = append(state.accumulatedBody, data...)

	if len(state.accumulatedBody) > state.expectedBodyLength || len(state.accumulatedBody) > p.maxBodySize {
		delete(p.pending, state.connID)
		return Result{Complete: true, Err: &FramingError{Code: CodeBadContentTooLarge}, URI: state.uri, Version: state.version, Headers: state.headers}
	}

	if len(state.accumulatedBody) == state.expectedBodyLength {
		res := Result{
			Complete: true,
			Method:   state.method,
			URI:      state.uri,
			Version:  state.version,
			Headers:  state.headers,
			Body:     state.accumulatedBody,
		}
		delete(p.pending, state.connID)
		return res
	}

	return Result{Method: state.method, URI: state.uri, Version: state.version}
}

func (p *Parser) parseContentLengthBody(connID, method, uri, version string, headers Headers, length int, body []byte) Result {
	switch {
	case len(body) > length || len(body) > p.maxBodySize:
		return Result{Complete: true, Err: &FramingError{Code: CodeBadContentTooLarge}, URI: uri, Version: version, Headers: headers}

	case len(body) == length:
		// The chunk belongs to the caller's read buffer; the body must
		// outlive it.
		return Result{Complete: true, Method: method, URI: uri, Version: version, Headers: headers, Body: append([]byte(nil), body...)}

	default:
		state := &parseState{
			connID:             connID,
			strategy:           strategyContentLength,
			method:             method,
			uri:                uri,
			version:            version,
			headers:            headers,
			expectedBodyLength: length,
			accumulatedBody:    append([]byte(nil), body...),
			lastActivity:       p.clock.Now(),
		}
		p.pending[connID] = state
		return Result{Method: method, URI: uri, Version: version, Headers: headers, Body: state.accumulatedBody}
	}
}

// parseRequestLine splits the first line into exactly three non-empty
// whitespace-separated tokens.
func parseRequestLine(data []byte) (method, uri, version string, rest []byte, ok bool) {
	line, rest := readLine(data)
	tokens := strings.Fields(string(line))
	if len(tokens) != 3 {
		return "", "", "", rest, false
	}
	return tokens[0], tokens[1], tokens[2], rest, true
}

// parseHeaders reads header lines until an empty line, enforcing the
// cumulative name+value budget. Lines without a colon are skipped.
// Names are stored uppercase.
func (p *Parser) parseHeaders(data []byte) (Headers, []byte, bool) {
	var headers Headers
	size := 0

	for len(data) > 0 {
		line, rest := readLine(data)
		data = rest

		if len(line) == 0 {
			break
		}

		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}

		name := string(line[:colon])
		value := strings.Trim(string(line[colon+1:]), " \t")

		size += len(name) + len(value)
		if size > p.maxHeaderSize {
			return Headers{}, data, false
		}

		headers.Add(strings.ToUpper(name), value)
	}

	return headers, data, true
}

// readLine returns the next line and the remainder. CRLF is canonical;
// a bare LF terminates a line too, and the trailing CR is stripped. A
// lone CR is not a terminator. Input without any LF is one line.
func readLine(data []byte) (line, rest []byte) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		return data, nil
	}
	line = data[:idx]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, data[idx+1:]
}

// hasChunkedEncoding reports whether any Transfer-Encoding value
// contains a chunked token, case-insensitively.
func hasChunkedEncoding(headers Headers) bool {
	for _, v := range headers.Values("Transfer-Encoding") {
		if strings.Contains(strings.ToLower(v), "chunked") {
			return true
		}
	}
	return false
}
