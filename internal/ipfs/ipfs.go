package ipfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultGateway        = "https://gateway.pinata.cloud/ipfs/"
	DefaultPinataEndpoint = "https://api.pinata.cloud/pinning/pinFileToIPFS"

	submissionFileName = "diwali-submission.jpg"
	maxFetchBytes      = 32 << 20
)

var (
	ErrNoHash   = errors.New("failed to get IPFS hash from Pinata")
	ErrNotFound = errors.New("content not found")
)

type Config struct {
	Gateway        string
	PinataEndpoint string
	APIKey         string
	SecretKey      string
	Timeout        time.Duration
	RetryMax       int
}

// Client pins files through Pinata and reads them back through a gateway.
// Without credentials it runs in dev mode: hashes are derived from the content
// and the bytes are kept in memory.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu  sync.RWMutex
	dev map[string][]byte
}

func NewClient(cfg Config) *Client {
	if cfg.Gateway == "" {
		cfg.Gateway = DefaultGateway
	}
	if cfg.PinataEndpoint == "" {
		cfg.PinataEndpoint = DefaultPinataEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = slog.Default()
	httpClient := rc.StandardClient()
	httpClient.Timeout = cfg.Timeout

	c := &Client{cfg: cfg, http: httpClient, now: time.Now}
	if c.DevMode() {
		slog.Warn("Pinata credentials not configured, using content-derived IPFS hashes")
		c.dev = make(map[string][]byte)
	}
	return c
}

func (c *Client) DevMode() bool {
	return c.cfg.APIKey == "" || c.cfg.SecretKey == ""
}

type pinataMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Pin uploads data and returns its CID. Upload failures are returned to the
// caller; only dev mode produces a synthetic hash.
func (c *Client) Pin(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("cannot pin empty content")
	}
	if c.DevMode() {
		hash := MockHash(data)
		c.mu.Lock()
		c.dev[hash] = append([]byte(nil), data...)
		c.mu.Unlock()
		return hash, nil
	}

	body, contentType, err := c.multipartBody(data)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PinataEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("pinata_api_key", c.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("IPFS upload failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("IPFS upload failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode Pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", ErrNoHash
	}

	slog.Info("pinned file to IPFS", "hash", out.IpfsHash, "size", out.PinSize)
	return out.IpfsHash, nil
}

func (c *Client) multipartBody(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", submissionFileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	now := c.now()
	meta, err := json.Marshal(pinataMetadata{
		Name: fmt.Sprintf("diwali-submission-%d", now.UnixMilli()),
		KeyValues: map[string]string{
			"app":       "basetive-diwali",
			"type":      "photo-submission",
			"timestamp": now.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Fetch downloads content by CID, ipfs:// URI or plain http(s) URL.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if c.DevMode() {
		if data, ok := c.devLookup(ref); ok {
			return data, nil
		}
	}

	url := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		cid := strings.TrimPrefix(ref, "ipfs://")
		url = c.GatewayURL(cid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("content at %s exceeds %d bytes", url, maxFetchBytes)
	}
	return data, nil
}

func (c *Client) devLookup(ref string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if data, ok := c.dev[ref]; ok {
		return data, true
	}
	for hash, data := range c.dev {
		if strings.HasSuffix(ref, "/"+hash) || ref == "ipfs://"+hash {
			return data, true
		}
	}
	return nil, false
}

// GatewayURL appends the hash to the configured gateway.
func (c *Client) GatewayURL(hash string) string {
	return GatewayURL(c.cfg.Gateway, hash)
}

// ToHTTP rewrites ipfs:// URIs onto the configured gateway.
func (c *Client) ToHTTP(uri string) string {
	return ToHTTP(c.cfg.Gateway, uri)
}

func GatewayURL(gateway, hash string) string {
	return gateway + hash
}

func ToHTTP(gateway, uri string) string {
	if uri == "" {
		return ""
	}
	if strings.HasPrefix(uri, "ipfs://") {
		return strings.TrimSuffix(gateway, "/") + "/" + strings.TrimPrefix(uri, "ipfs://")
	}
	return uri
}

// MockHash is the dev mode CID: "Qm" followed by the first 44 hex chars of sha256(data).
func MockHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "Qm" + hex.EncodeToString(sum[:])[:44]
}
