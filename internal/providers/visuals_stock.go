package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/models"
)

// maxStockKeywords caps the search terms derived from a scene prompt.
const maxStockKeywords = 5

// stockStopWords are dropped before keyword extraction. Lowercase.
var stockStopWords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "their": true,
	"and": true, "are": true, "because": true, "been": true, "before": true,
	"being": true, "between": true, "both": true, "could": true, "does": true,
	"doing": true, "down": true, "during": true, "each": true, "few": true,
	"from": true, "further": true, "have": true, "having": true, "here": true,
	"how": true, "into": true, "itself": true, "just": true, "more": true,
	"most": true, "once": true, "only": true, "other": true, "over": true,
	"same": true, "should": true, "some": true, "such": true, "than": true,
	"that": true, "the": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "through": true, "under": true,
	"until": true, "very": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "with": true, "will": true, "would": true,
	"your": true, "yours": true,
}

// stockOrientations maps aspect ratios onto the search API's orientation
// parameter.
var stockOrientations = map[models.AspectRatio]string{
	models.AspectLandscape: "landscape",
	models.AspectPortrait:  "portrait",
	models.AspectSquare:    "square",
	models.AspectClassic:   "landscape",
}

// ExtractKeywords reduces a scene prompt to search terms: stop-word
// filtered, longer than three characters, first five kept in order.
func ExtractKeywords(prompt string) []string {
	seen := map[string]bool{}
	var keywords []string
	for _, raw := range strings.Fields(prompt) {
		word := strings.ToLower(strings.Trim(raw, ".,;:!?\"'()[]"))
		if len(word) <= 3 || stockStopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == maxStockKeywords {
			break
		}
	}
	return keywords
}

// StockVisuals searches a stock photo API (Pexels-compatible) and downloads
// one image per scene.
type StockVisuals struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewStockVisuals creates a stock image provider.
func NewStockVisuals(cfg config.StockConfig, client *http.Client) *StockVisuals {
	return &StockVisuals{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

func (p *StockVisuals) Name() string          { return NameStock }
func (p *StockVisuals) RequiresNetwork() bool { return true }

// Available reports whether the provider is configured with a key. The
// actual reachability check happens on first use; a failed search is a
// retryable provider error.
func (p *StockVisuals) Available(_ context.Context) bool {
	return p.apiKey != ""
}

type stockSearchResponse struct {
	Photos []struct {
		ID  int64 `json:"id"`
		Src struct {
			Large string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

// GenerateImages searches with keywords derived from the prompt and
// downloads count images. When the search yields fewer photos than scenes,
// results are reused cyclically.
func (p *StockVisuals) GenerateImages(ctx context.Context, prompt string, aspect models.AspectRatio, count int, outDir string) ([]string, error) {
	if count < 1 {
		count = 1
	}

	keywords := ExtractKeywords(prompt)
	if len(keywords) == 0 {
		keywords = []string{"abstract"}
	}

	photos, err := p.search(ctx, strings.Join(keywords, " "), stockOrientations[aspect], count)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, &models.StageError{
			Code:    models.ErrCodeProviderCall,
			Message: fmt.Sprintf("stock search for %q returned no photos", strings.Join(keywords, " ")),
		}
	}

	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := photos[i%len(photos)]
		path := filepath.Join(outDir, fmt.Sprintf("scene-%02d.jpg", i+1))
		if err := p.download(ctx, src, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func (p *StockVisuals) search(ctx context.Context, query, orientation string, count int) ([]string, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(count))
	if orientation != "" {
		params.Set("orientation", orientation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, models.NewStageError(models.ErrCodeInternal, "building stock search request", err)
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &models.StageError{
			Code: models.ErrCodeProviderCall, Message: "stock search failed", Transient: true, Err: err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   fmt.Sprintf("stock search returned %d", resp.StatusCode),
			Transient: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var out stockSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &models.StageError{
			Code: models.ErrCodeProviderCall, Message: "decoding stock search response", Transient: true, Err: err,
		}
	}

	urls := make([]string, 0, len(out.Photos))
	for _, photo := range out.Photos {
		if photo.Src.Large != "" {
			urls = append(urls, photo.Src.Large)
		}
	}
	return urls, nil
}

func (p *StockVisuals) download(ctx context.Context, srcURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return models.NewStageError(models.ErrCodeInternal, "building stock download request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &models.StageError{
			Code: models.ErrCodeProviderCall, Message: "stock download failed", Transient: true, Err: err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   fmt.Sprintf("stock download returned %d", resp.StatusCode),
			Transient: resp.StatusCode >= 500,
		}
	}

	f, err := os.Create(destPath)
	if err != nil {
		return models.NewStageError(models.ErrCodeDiskSpace, "creating image file", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return models.NewStageError(models.ErrCodeDiskSpace, "writing image file", err)
	}
	return f.Sync()
}
