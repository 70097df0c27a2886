package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Google talks to the Cloud Translation v2 REST API.
type Google struct {
	cfg    Config
	client *breakerClient
}

var _ Service = (*Google)(nil)

// NewGoogle builds the Google backend. Panics only on a programmer error
// (empty key); use New to auto-select Noop instead.
func NewGoogle(cfg Config) *Google {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	return &Google{cfg: cfg, client: newBreakerClient(cfg)}
}

// New selects the backend for the given config: Google when an API key is
// present, Noop otherwise.
func New(cfg Config) Service {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Noop{}
	}
	return NewGoogle(cfg)
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

type detectResponse struct {
	Data struct {
		Detections [][]struct {
			Language   string  `json:"language"`
			Confidence float64 `json:"confidence"`
		} `json:"detections"`
	} `json:"data"`
}

// Translate translates text into target. source may be Auto or empty; then
// the source parameter is omitted and the API detects it, which also covers
// transliterated input the caller could not classify.
func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || target == "" {
		return text, nil
	}

	form := url.Values{}
	form.Set("q", text)
	form.Set("target", target)
	form.Set("format", "text")
	if source != "" && source != Auto && source != "und" {
		form.Set("source", source)
	}

	body, err := g.client.postForm(ctx, g.endpoint(""), form)
	if err != nil {
		requestsTotal.WithLabelValues("translate", "error").Inc()
		return "", fmt.Errorf("translate: %w", err)
	}

	var resp translateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		requestsTotal.WithLabelValues("translate", "error").Inc()
		return "", fmt.Errorf("translate: decode: %w", err)
	}
	if len(resp.Data.Translations) == 0 {
		requestsTotal.WithLabelValues("translate", "empty").Inc()
		return "", fmt.Errorf("translate: empty response")
	}

	requestsTotal.WithLabelValues("translate", "ok").Inc()
	return resp.Data.Translations[0].TranslatedText, nil
}

// Detect returns the most confident detection for text.
func (g *Google) Detect(ctx context.Context, text string) (Detection, error) {
	if strings.TrimSpace(text) == "" {
		return Detection{}, fmt.Errorf("translate: detect: empty text")
	}

	form := url.Values{}
	form.Set("q", text)

	body, err := g.client.postForm(ctx, g.endpoint("/detect"), form)
	if err != nil {
		requestsTotal.WithLabelValues("detect", "error").Inc()
		return Detection{}, fmt.Errorf("translate: detect: %w", err)
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		requestsTotal.WithLabelValues("detect", "error").Inc()
		return Detection{}, fmt.Errorf("translate: detect: decode: %w", err)
	}
	if len(resp.Data.Detections) == 0 || len(resp.Data.Detections[0]) == 0 {
		requestsTotal.WithLabelValues("detect", "empty").Inc()
		return Detection{}, fmt.Errorf("translate: detect: empty response")
	}

	best := resp.Data.Detections[0][0]
	for _, d := range resp.Data.Detections[0][1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	requestsTotal.WithLabelValues("detect", "ok").Inc()
	return Detection{Language: strings.ToLower(best.Language), Confidence: best.Confidence}, nil
}

func (g *Google) endpoint(suffix string) string {
	u := g.cfg.BaseURL + suffix
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "key=" + url.QueryEscape(g.cfg.APIKey)
}
