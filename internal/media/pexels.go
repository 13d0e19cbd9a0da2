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

const pexelsBaseURL = "https://api.pexels.com"

// Pexels searches the Pexels video and photo APIs.
type Pexels struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPexels(apiKey string, client *http.Client) *Pexels {
	return &Pexels{apiKey: apiKey, baseURL: pexelsBaseURL, client: client}
}

// WithBaseURL points the provider at another host (used by tests).
func (p *Pexels) WithBaseURL(u string) *Pexels {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *Pexels) Name() string { return "pexels" }

type pexelsVideoFile struct {
	ID       int    `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

type pexelsVideo struct {
	ID         int               `json:"id"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Duration   float64           `json:"duration"`
	URL        string            `json:"url"`
	VideoFiles []pexelsVideoFile `json:"video_files"`
}

type pexelsPhoto struct {
	ID     int    `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
	Src    struct {
		Original string `json:"original"`
		Large2x  string `json:"large2x"`
		Portrait string `json:"portrait"`
	} `json:"src"`
}

func (p *Pexels) Search(ctx context.Context, q SearchQuery) ([]Candidate, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("pexels: api key not configured")
	}

	params := url.Values{}
	params.Set("query", q.Terms)
	params.Set("per_page", strconv.Itoa(perPage(q)))
	params.Set("orientation", "portrait")

	endpoint := p.baseURL + "/v1/search"
	if q.Kind == models.MediaKindVideo {
		endpoint = p.baseURL + "/videos/search"
	}
	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", p.apiKey)
		return req, nil
	}

	if q.Kind == models.MediaKindVideo {
		var result struct {
			Videos []pexelsVideo `json:"videos"`
		}
		if err := getJSON(ctx, p.client, p.Name(), newReq, &result); err != nil {
			return nil, err
		}
		var out []Candidate
		for _, v := range result.Videos {
			f, ok := pickPexelsFile(v.VideoFiles)
			if !ok {
				continue
			}
			out = append(out, Candidate{
				ID:       strconv.Itoa(v.ID),
				Provider: p.Name(),
				Kind:     models.MediaKindVideo,
				URL:      f.Link,
				PageURL:  v.URL,
				Width:    f.Width,
				Height:   f.Height,
				Duration: v.Duration,
			})
		}
		return out, nil
	}

	var result struct {
		Photos []pexelsPhoto `json:"photos"`
	}
	if err := getJSON(ctx, p.client, p.Name(), newReq, &result); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, ph := range result.Photos {
		link := ph.Src.Large2x
		if link == "" {
			link = ph.Src.Original
		}
		if link == "" {
			continue
		}
		out = append(out, Candidate{
			ID:       strconv.Itoa(ph.ID),
			Provider: p.Name(),
			Kind:     models.MediaKindImage,
			URL:      link,
			PageURL:  ph.URL,
			Width:    ph.Width,
			Height:   ph.Height,
		})
	}
	return out, nil
}

// pickPexelsFile chooses the mp4 rendition closest to 1080 on its short
// side, preferring files at least that large.
func pickPexelsFile(files []pexelsVideoFile) (pexelsVideoFile, bool) {
	var best pexelsVideoFile
	bestScore := -1
	for _, f := range files {
		if f.Link == "" || (f.FileType != "" && f.FileType != "video/mp4") {
			continue
		}
		short := f.Width
		if f.Height < short {
			short = f.Height
		}
		score := 10000 - abs(short-1080)
		if short >= 1080 {
			score += 5000
		}
		if short > 2160 {
			score -= 3000 // 4k is slow to download and decode
		}
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	return best, bestScore >= 0
}

func perPage(q SearchQuery) int {
	if q.PerPage > 0 {
		return q.PerPage
	}
	return 15
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
