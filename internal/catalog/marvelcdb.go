package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/game"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "tabletop-server-go"

// MarvelCDB resolves decks and cards through the public MarvelCDB JSON API.
// Requests are paced by a shared limiter so bursts of lobby activity never
// hammer the upstream site.
type MarvelCDB struct {
	baseURL *url.URL
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type marvelDecklist struct {
	ID    json.Number    `json:"id"`
	Name  string         `json:"name"`
	Slots map[string]int `json:"slots"`
}

type marvelCard struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// NewMarvelCDB builds a client from cfg. A nil httpClient gets one with
// cfg.Timeout.
func NewMarvelCDB(cfg config.MarvelCDBConfig, httpClient *http.Client, logger *zap.Logger) (*MarvelCDB, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid marvelcdb base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &MarvelCDB{
		baseURL: base,
		client:  httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// ResolveDeck fetches a public decklist.
func (m *MarvelCDB) ResolveDeck(ctx context.Context, id string) (game.DeckList, error) {
	var raw marvelDecklist
	if err := m.get(ctx, "/api/public/decklist/"+url.PathEscape(id), &raw); err != nil {
		return game.DeckList{}, fmt.Errorf("deck %q: %w", id, err)
	}

	codes := make([]string, 0, len(raw.Slots))
	for code, qty := range raw.Slots {
		if qty > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	deck := game.DeckList{ID: id, Name: raw.Name, Cards: make([]game.DeckCard, 0, len(codes))}
	for _, code := range codes {
		deck.Cards = append(deck.Cards, game.DeckCard{Code: code, Quantity: raw.Slots[code]})
	}
	if len(deck.Cards) == 0 {
		return game.DeckList{}, fmt.Errorf("deck %q has no cards: %w", id, ErrNotFound)
	}
	return deck, nil
}

// LookupCard fetches one card.
func (m *MarvelCDB) LookupCard(ctx context.Context, code string) (game.Card, error) {
	var raw marvelCard
	if err := m.get(ctx, "/api/public/card/"+url.PathEscape(code), &raw); err != nil {
		return game.Card{}, fmt.Errorf("card %q: %w", code, err)
	}
	if raw.Code == "" {
		raw.Code = code
	}
	if raw.Name == "" {
		raw.Name = raw.Code
	}
	return game.Card{Code: raw.Code, Name: raw.Name, Text: raw.Text}, nil
}

func (m *MarvelCDB) get(ctx context.Context, path string, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	endpoint := m.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint.Path, err)
	}
	defer resp.Body.Close()

	m.logger.Debug("marvelcdb request",
		zap.String("path", endpoint.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("marvelcdb %s: status %d: %s", endpoint.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint.Path, err)
	}
	return nil
}
