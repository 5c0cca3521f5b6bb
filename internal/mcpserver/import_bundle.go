package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/questline/internal/bundle"
)

const maxBundleSize = 64 << 20 // 64 MB

var zipMIMEs = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
}

type importResult struct {
	ID          string `json:"id"`
	QuestlineID string `json:"questlineId"`
	Quests      int    `json:"quests"`
	Object      string `json:"object"`
}

func (s *Server) importBundle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.archive == nil {
		return mcp.NewToolResultError(errNoArchive.Error()), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(data) > maxBundleSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxBundleSize)), nil
	}
	if err := validateMagicBytes(data); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b, err := bundle.Unpack(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rep := bundle.Verify(*b); !rep.OK() {
		return mcp.NewToolResultError("bundle failed verification:\n" + strings.Join(rep.Problems, "\n")), nil
	}

	rec, err := s.archive.Save(ctx, *b)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to archive bundle: %v", err)), nil
	}

	out, _ := json.Marshal(importResult{
		ID:          rec.ID,
		QuestlineID: rec.QuestlineID,
		Quests:      rec.QuestCount,
		Object:      rec.Object,
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI holding a zip.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if !zipMIMEs[mime] {
		return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// fetchHTTP downloads a bundle from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient.Timeout = 30 * time.Second
	client.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects (max 5)")
		}
		return checkBlockedHost(req.URL.Hostname())
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxBundleSize {
		return nil, fmt.Errorf("file too large: exceeds %d bytes", maxBundleSize)
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let the client report DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// validateMagicBytes verifies the content is a zip archive.
func validateMagicBytes(data []byte) error {
	detected := http.DetectContentType(data)
	if mime := strings.Split(detected, ";")[0]; mime != "application/zip" {
		return fmt.Errorf("content is not a zip archive (detected: %s)", detected)
	}
	return nil
}
