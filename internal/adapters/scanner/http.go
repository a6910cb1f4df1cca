// Package scanner implements core.Scanner against antivirus backends.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/core"
)

// maxResponseBytes caps how much of a scanner response is decoded.
const maxResponseBytes = 1 << 20

// HTTPOptions configures HTTPScanner.
type HTTPOptions struct {
	Config config.ScannerConfig
	Client *http.Client
	Now    func() time.Time
}

// HTTPScanner posts object bytes to an antivirus REST service as a multipart
// upload and reads the verdict out of the JSON response with JMESPath.
type HTTPScanner struct {
	url       string
	engine    string
	infected  jmespath.JMESPath
	signature jmespath.JMESPath
	client    *http.Client
	now       func() time.Time
}

// NewHTTPScanner compiles the configured expressions and builds the client.
func NewHTTPScanner(opts HTTPOptions) (*HTTPScanner, error) {
	cfg := opts.Config
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("scanner url is required")
	}

	infected, err := jmespath.Compile(cfg.InfectedExpr)
	if err != nil {
		return nil, fmt.Errorf("compile infected expression %q: %w", cfg.InfectedExpr, err)
	}
	s := &HTTPScanner{
		url:      url,
		engine:   cfg.EngineName,
		infected: infected,
		client:   opts.Client,
		now:      opts.Now,
	}
	if expr := strings.TrimSpace(cfg.SignatureExpr); expr != "" {
		if s.signature, err = jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("compile signature expression %q: %w", expr, err)
		}
	}
	if s.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		s.client = &http.Client{Timeout: timeout}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.engine == "" {
		s.engine = "http"
	}
	return s, nil
}

// Scan streams r to the scanner and evaluates the response.
func (s *HTTPScanner) Scan(ctx context.Context, name string, r io.Reader) (*core.ScanVerdict, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", path.Base(name))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("create scan request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("scan request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scanner returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var doc any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode scanner response: %w", err)
	}
	return s.verdict(doc)
}

func (s *HTTPScanner) verdict(doc any) (*core.ScanVerdict, error) {
	raw, err := s.infected.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate infected expression: %w", err)
	}
	infected, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("infected expression yielded %T, want boolean", raw)
	}

	v := &core.ScanVerdict{
		Infected:  infected,
		Engine:    s.engine,
		ScannedAt: s.now().UTC(),
	}
	if infected && s.signature != nil {
		sig, err := s.signature.Search(doc)
		if err != nil {
			return nil, fmt.Errorf("evaluate signature expression: %w", err)
		}
		if str, ok := sig.(string); ok {
			v.Signature = str
		}
	}
	return v, nil
}

var _ core.Scanner = (*HTTPScanner)(nil)
