package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"llmgateway/internal/util"
	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
	"llmgateway/pkg/extract"
)

const (
	blogPromptPrefix = "Summarize this blog post:\n\n"
	maxPageBytes     = 5 << 20
	maxPageRedirects = 5
)

var errBlockedAddress = errors.New("address not allowed")

// sharedAddressSpace is carrier-grade NAT space, which netip does not flag as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// newPageClient returns the client used for page fetches. It refuses to
// connect to loopback, private, link-local and other non-public addresses,
// including when a public name resolves to one or a redirect points at one.
func newPageClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   rejectNonPublic,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxPageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxPageRedirects)
			}
			return nil
		},
	}
}

func rejectNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !publicAddr(addr) {
		return fmt.Errorf("%w: %s", errBlockedAddress, addr)
	}
	return nil
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsGlobalUnicast() && !addr.IsPrivate() && !sharedAddressSpace.Contains(addr)
}

// SummarizeURL fetches a web page, summarizes the text of its paragraphs
// and records the result under the URL.
func (a *App) SummarizeURL(ctx context.Context, identity domain.Identity, rawURL string) (domain.SummaryRecord, error) {
	action := string(domain.ActionSummarizeURL)
	rec, err := a.summarizeURL(ctx, identity, rawURL)
	a.metrics.PipelineRun(action, pipelineOutcome(err))
	return rec, err
}

func (a *App) summarizeURL(ctx context.Context, identity domain.Identity, rawURL string) (domain.SummaryRecord, error) {
	target, err := parsePageURL(rawURL)
	if err != nil {
		return domain.SummaryRecord{}, err
	}
	paragraphs, err := a.fetchParagraphs(ctx, target)
	if err != nil {
		return domain.SummaryRecord{}, &ValidationError{Field: "url", Reason: err.Error()}
	}
	text := truncateRunes(strings.Join(paragraphs, " "), a.maxPromptChars)
	if strings.TrimSpace(text) == "" {
		return domain.SummaryRecord{}, &EmptyContentError{Name: target}
	}
	output, err := a.generator.Generate(ctx, ai.Request{
		Model:   a.model,
		Prompt:  blogPromptPrefix + text,
		Timeout: a.summarizeTimeout,
	})
	if err != nil {
		return domain.SummaryRecord{}, upstreamError(err)
	}
	rec := domain.SummaryRecord{
		ID:           util.NewID(),
		Owner:        identity.Principal,
		StoredName:   target,
		OriginalName: target,
		Action:       domain.ActionSummarizeURL,
		Summary:      output,
		ProcessedBy:  a.model,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.persist(ctx, "summary", func(ctx context.Context) error {
		return a.store.InsertSummary(ctx, rec)
	}); err != nil {
		return domain.SummaryRecord{}, err
	}
	return rec, nil
}

func parsePageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "url", Reason: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &ValidationError{Field: "url", Reason: "must be an absolute http or https URL"}
	}
	return u.String(), nil
}

func (a *App) fetchParagraphs(ctx context.Context, target string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.blogTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := a.httpClient.Do(req)
	if errors.Is(err, errBlockedAddress) {
		return nil, errBlockedAddress
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	paragraphs, err := extract.Paragraphs(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return paragraphs, nil
}
