package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// maxBodySize bounds how much of a quote page is read.
const maxBodySize = 8 << 20

// HTMLSource fetches the quote page over plain HTTP, without running scripts.
type HTMLSource struct {
	Client       *http.Client
	Rule         Rule
	URLTemplate  string
	MarketSuffix string
	UserAgent    string
	Timeout      time.Duration
}

func (s *HTMLSource) Name() string   { return "html" }
func (s *HTMLSource) Suffix() string { return s.MarketSuffix }

func (s *HTMLSource) Retrieve(ctx context.Context, symbol string) (Fields, error) {
	page, err := s.fetchPage(ctx, BuildURL(s.URLTemplate, symbol))
	if err != nil {
		return Fields{}, err
	}
	return s.Rule.Extract(page)
}

func (s *HTMLSource) fetchPage(ctx context.Context, url string) (Page, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Page{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, ClassifyHTTPStatus(resp.StatusCode)
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return Page{}, NewNetworkError(err)
	}
	defer reader.Close()

	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return Page{}, transportError(ctx, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return Page{Text: visibleText(doc), HTML: string(body)}, nil
}

// decodeBody undoes the Content-Encoding. Setting Accept-Encoding by hand
// turns off the transport's own gzip handling, so every advertised encoding
// is decoded here.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return reader, nil
	case "deflate":
		reader, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create deflate reader: %w", err)
		}
		return reader, nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "zstd":
		decoder, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
