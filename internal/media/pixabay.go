package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bobarin/reels/internal/models"
)

const pixabayBaseURL = "https://pixabay.com/api"

// Pixabay searches the Pixabay video and image APIs.
type Pixabay struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPixabay(apiKey string, client *http.Client) *Pixabay {
	return &Pixabay{apiKey: apiKey, baseURL: pixabayBaseURL, client: client}
}

// WithBaseURL points the provider at another host (used by tests).
func (p *Pixabay) WithBaseURL(u string) *Pixabay {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *Pixabay) Name() string { return "pixabay" }

type pixabayRendition struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
}

type pixabayVideoHit struct {
	ID       int     `json:"id"`
	PageURL  string  `json:"pageURL"`
	Duration float64 `json:"duration"`
	Videos   struct {
		Large  pixabayRendition `json:"large"`
		Medium pixabayRendition `json:"medium"`
		Small  pixabayRendition `json:"small"`
	} `json:"videos"`
}

type pixabayImageHit struct {
	ID            int    `json:"id"`
	PageURL       string `json:"pageURL"`
	LargeImageURL string `json:"largeImageURL"`
	ImageWidth    int    `json:"imageWidth"`
	ImageHeight   int    `json:"imageHeight"`
}

func (p *Pixabay) Search(ctx context.Context, q SearchQuery) ([]Candidate, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("pixabay: api key not configured")
	}

	terms := q.Terms
	if len(terms) > 100 {
		terms = terms[:100]
	}
	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("q", terms)
	params.Set("per_page", strconv.Itoa(perPage(q)))
	params.Set("safesearch", "true")

	endpoint := p.baseURL + "/"
	if q.Kind == models.MediaKindVideo {
		endpoint = p.baseURL + "/videos/"
	} else {
		params.Set("image_type", "photo")
		params.Set("orientation", "vertical")
	}
	newReq := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	}

	if q.Kind == models.MediaKindVideo {
		var result struct {
			Hits []pixabayVideoHit `json:"hits"`
		}
		if err := getJSON(ctx, p.client, p.Name(), newReq, &result); err != nil {
			return nil, err
		}
		var out []Candidate
		for _, h := range result.Hits {
			r := h.Videos.Large
			if r.URL == "" {
				r = h.Videos.Medium
			}
			if r.URL == "" {
				continue
			}
			out = append(out, Candidate{
				ID:       strconv.Itoa(h.ID),
				Provider: p.Name(),
				Kind:     models.MediaKindVideo,
				URL:      r.URL,
				PageURL:  h.PageURL,
				Width:    r.Width,
				Height:   r.Height,
				Duration: h.Duration,
			})
		}
		return out, nil
	}

	var result struct {
		Hits []pixabayImageHit `json:"hits"`
	}
	if err := getJSON(ctx, p.client, p.Name(), newReq, &result); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, h := range result.Hits {
		if h.LargeImageURL == "" {
			continue
		}
		out = append(out, Candidate{
			ID:       strconv.Itoa(h.ID),
			Provider: p.Name(),
			Kind:     models.MediaKindImage,
			URL:      h.LargeImageURL,
			PageURL:  h.PageURL,
			Width:    h.ImageWidth,
			Height:   h.ImageHeight,
		})
	}
	return out, nil
}
