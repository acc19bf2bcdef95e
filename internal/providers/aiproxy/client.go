// Package aiproxy talks to the AI gateway that fronts the image, chat and product
// vendors. One JSON endpoint per operation; retries are left to the workflow.
package aiproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/observability"
	"github.com/yungbote/roomforge-backend/internal/platform/envutil"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

const (
	pathValidatePhoto = "/v1/photos/validate"
	pathGenerate      = "/v1/generate"
	pathEdit          = "/v1/edit"
	pathIntakeTurn    = "/v1/intake/turn"
	pathSearch        = "/v1/products/search"

	maxResponseBytes = 64 << 20
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

func LoadConfig() Config {
	return Config{
		BaseURL: envutil.String("PROVIDER_BASE_URL", ""),
		APIKey:  envutil.String("PROVIDER_API_KEY", ""),
		Timeout: envutil.Seconds("PROVIDER_TIMEOUT_SECONDS", 120),
		RPS:     envutil.Float("PROVIDER_RPS", 5),
		Burst:   envutil.Int("PROVIDER_BURST", 10),
	}
}

type Client struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("aiproxy: missing PROVIDER_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		log:     log.With("client", "aiproxy"),
		baseURL: base,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}, nil
}

// Set exposes the client as every provider collaborator.
func (c *Client) Set() providers.Set {
	return providers.Set{Photos: c, Studio: c, Intake: c, Shopping: c}
}

func (c *Client) Validate(ctx context.Context, req providers.PhotoRequest) (project.PhotoCheck, error) {
	var out project.PhotoCheck
	err := c.post(ctx, pathValidatePhoto, req, &out)
	return out, err
}

type generateResponse struct {
	Designs []providers.GeneratedDesign `json:"designs"`
}

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) ([]providers.GeneratedDesign, error) {
	var out generateResponse
	if err := c.post(ctx, pathGenerate, req, &out); err != nil {
		return nil, err
	}
	return out.Designs, nil
}

type editResponse struct {
	Image providers.Image `json:"image"`
}

func (c *Client) Edit(ctx context.Context, req providers.EditRequest) (providers.Image, error) {
	var out editResponse
	if err := c.post(ctx, pathEdit, req, &out); err != nil {
		return providers.Image{}, err
	}
	if len(out.Image.Data) == 0 {
		return providers.Image{}, providers.Errorf(providers.KindInvalidInput, "edit returned no image")
	}
	return out.Image, nil
}

func (c *Client) Turn(ctx context.Context, req providers.TurnRequest) (project.IntakeTurnResult, error) {
	var out project.IntakeTurnResult
	err := c.post(ctx, pathIntakeTurn, req, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, req providers.SearchRequest) (project.ShoppingList, error) {
	var out project.ShoppingList
	err := c.post(ctx, pathSearch, req, &out)
	return out, err
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends one JSON request. Every failure comes back as a *providers.Error so
// activities can classify it without inspecting HTTP details.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		observability.Current().ObserveProviderRequest(path, status, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return &providers.Error{Kind: providers.KindTransient, Message: "rate limiter wait", Err: err}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return &providers.Error{Kind: providers.KindInvalidInput, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return &providers.Error{Kind: providers.KindInvalidInput, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &providers.Error{Kind: providers.KindTransient, Message: "request failed", Err: err}
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	if readErr != nil {
		return &providers.Error{Kind: providers.KindTransient, Status: resp.StatusCode, Message: "read response", Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := strings.TrimSpace(eb.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
			if len(msg) > 256 {
				msg = msg[:256]
			}
		}
		kind := providers.ClassifyStatus(resp.StatusCode, eb.Error.Code)
		c.log.Warn("Provider request failed", "path", path, "status", resp.StatusCode, "code", eb.Error.Code, "kind", kind)
		return &providers.Error{Kind: kind, Status: resp.StatusCode, Code: eb.Error.Code, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		var syn *json.SyntaxError
		msg := "malformed response"
		if errors.As(err, &syn) {
			msg = fmt.Sprintf("malformed response at offset %d", syn.Offset)
		}
		return &providers.Error{Kind: providers.KindInvalidInput, Status: resp.StatusCode, Message: msg, Err: err}
	}
	return nil
}
