package media

import (
	"strings"

	"github.com/samber/lo"

	"github.com/bobarin/reels/internal/models"
)

// Strategy is one set of search terms for a scene.
type Strategy struct {
	Name  string
	Terms string
}

var genericTypeTerms = map[models.VisualType]string{
	models.VisualTypeBRoll:   "footage",
	models.VisualTypeStatic:  "background",
	models.VisualTypeTalking: "people talking",
	models.VisualTypeOverlay: "abstract texture",
}

func genericTerm(vt models.VisualType) string {
	if term, ok := genericTypeTerms[vt]; ok {
		return term
	}
	return "background"
}

// BuildStrategies returns the search strategies for a scene in priority
// order: primary keywords, secondary keywords, mood plus a generic type term,
// then the generic term alone. Empty and duplicate strategies are dropped.
func BuildStrategies(scene models.SceneDescriptor) []Strategy {
	generic := genericTerm(scene.VisualType)
	candidates := []Strategy{
		{Name: "primary", Terms: joinKeywords(scene.PrimaryKeywords)},
		{Name: "secondary", Terms: joinKeywords(scene.SecondaryKeywords)},
		{Name: "mood", Terms: joinKeywords([]string{scene.Mood, generic})},
		{Name: "fallback", Terms: generic},
	}

	out := lo.Filter(candidates, func(s Strategy, _ int) bool {
		return s.Terms != ""
	})
	// the mood strategy degenerates to the fallback when mood is empty
	return lo.UniqBy(out, func(s Strategy) string { return s.Terms })
}

func joinKeywords(words []string) string {
	cleaned := lo.Map(words, func(w string, _ int) string {
		return strings.Join(strings.Fields(strings.ToLower(w)), " ")
	})
	cleaned = lo.Uniq(lo.Compact(cleaned))
	return strings.Join(cleaned, " ")
}

// KindForScene picks the media kind to search for.
func KindForScene(vt models.VisualType) models.MediaKind {
	if vt == models.VisualTypeStatic {
		return models.MediaKindImage
	}
	return models.MediaKindVideo
}
