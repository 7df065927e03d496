package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"petition-gateway/petition/domain"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	TurnstileVerifyURL   = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	DefaultVerifyTimeout = 5 * time.Second

	maxTokenLen      = 2048
	maxVerifyRespLen = 64 << 10
)

type SiteVerifierConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	// RetryWaitMin/Max controlam o backoff da única nova tentativa.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// SiteVerifier consulta um endpoint siteverify (Turnstile, reCAPTCHA, hCaptcha):
// POST form secret/response/remoteip, resposta JSON {success, error-codes}.
//
// Erro de conexão, 5xx e 429 ganham uma nova tentativa com backoff; o tempo
// total da chamada é limitado por Timeout.
type SiteVerifier struct {
	url     string
	secret  string
	timeout time.Duration
	client  *retryablehttp.Client
	logger  *slog.Logger
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func NewSiteVerifier(cfg SiteVerifierConfig) *SiteVerifier {
	if cfg.URL == "" {
		cfg.URL = TurnstileVerifyURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultVerifyTimeout
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 250 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	// *slog.Logger já satisfaz retryablehttp.LeveledLogger
	client.Logger = cfg.Logger.With("component", "verifier")

	return &SiteVerifier{
		url:     cfg.URL,
		secret:  cfg.Secret,
		timeout: cfg.Timeout,
		client:  client,
		logger:  cfg.Logger,
	}
}

// Verify implementa domain.Verifier.
func (v *SiteVerifier) Verify(ctx context.Context, token, remoteIP string) (domain.Verdict, error) {
	if token == "" || len(token) > maxTokenLen {
		return domain.VerdictRejected, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, v.url, []byte(form.Encode()))
	if err != nil {
		return domain.VerdictUnavailable, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return domain.VerdictUnavailable, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxVerifyRespLen))
		return domain.VerdictUnavailable, fmt.Errorf("siteverify: unexpected status %d", resp.StatusCode)
	}

	var out siteVerifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerifyRespLen)).Decode(&out); err != nil {
		return domain.VerdictUnavailable, fmt.Errorf("siteverify: decode response: %w", err)
	}
	if !out.Success {
		v.logger.Debug("bot check rejected",
			"component", "verifier",
			"error_codes", out.ErrorCodes,
		)
		return domain.VerdictRejected, nil
	}
	return domain.VerdictVerified, nil
}

// AllowAllVerifier aprova qualquer token. Só para desenvolvimento local.
type AllowAllVerifier struct{}

func (AllowAllVerifier) Verify(context.Context, string, string) (domain.Verdict, error) {
	return domain.VerdictVerified, nil
}
