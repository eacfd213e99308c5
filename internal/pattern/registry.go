package pattern

import (
	"sort"

	"github.com/MrWong99/mcav/pkg/protocol"
)

// DefaultPattern is used at startup and as the fallback for unknown
// pattern names.
const DefaultPattern = "spectrum"

var factories = map[string]func() Pattern{
	"spectrum":  func() Pattern { return &spectrumPattern{} },
	"wave":      func() Pattern { return &wavePattern{} },
	"ring":      func() Pattern { return &ringPattern{} },
	"helix":     func() Pattern { return &helixPattern{} },
	"grid":      func() Pattern { return &gridPattern{} },
	"starburst": func() Pattern { return &starburstPattern{} },
}

// New builds a fresh pattern instance. Unknown names fall back to
// [DefaultPattern]; the second return reports whether the name matched.
func New(name string) (Pattern, bool) {
	f, ok := factories[name]
	if !ok {
		f = factories[DefaultPattern]
	}
	return f(), ok
}

// Known reports whether name is a registered pattern.
func Known(name string) bool {
	_, ok := factories[name]
	return ok
}

// List returns the catalogue in id order for the control plane.
func List() []protocol.PatternInfo {
	out := make([]protocol.PatternInfo, 0, len(factories))
	for _, f := range factories {
		info := f().Info()
		out = append(out, protocol.PatternInfo{
			ID:                  info.ID,
			Name:                info.Name,
			Description:         info.Description,
			RecommendedEntities: info.RecommendedEntities,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecommendedEntityCount returns the catalogue's suggested entity count
// for name, clamped to the supported range. Unknown names use the
// fallback pattern's recommendation.
func RecommendedEntityCount(name string) int {
	p, _ := New(name)
	return ClampEntityCount(p.Info().RecommendedEntities)
}
