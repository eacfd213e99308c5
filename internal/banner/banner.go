// Package banner manages per-DJ banner profiles: how the renderer
// displays a DJ's name or logo above the stage. Profiles persist as one
// JSON file, with image pixel grids stored next to it as raw big-endian
// ARGB sidecar files so the JSON stays reviewable.
package banner

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Grid bounds accepted on logo upload.
const (
	MinGridWidth  = 4
	MaxGridWidth  = 48
	MinGridHeight = 2
	MaxGridHeight = 24
)

// Profile is one DJ's banner configuration. ImagePixels is row-major
// ARGB, GridWidth×GridHeight long when present.
type Profile struct {
	BannerMode     string `json:"banner_mode"`
	TextStyle      string `json:"text_style"`
	TextColorMode  string `json:"text_color_mode"`
	TextFixedColor string `json:"text_fixed_color"`
	TextFormat     string `json:"text_format"`
	GridWidth      int    `json:"grid_width"`
	GridHeight     int    `json:"grid_height"`
	LogoFilename   string `json:"logo_filename,omitempty"`
	HasImage       bool   `json:"has_image,omitempty"`

	ImagePixels []int32 `json:"-"`
}

// DefaultProfile is what the renderer falls back to for DJs without a
// stored profile.
func DefaultProfile() Profile {
	return Profile{
		BannerMode:     "text",
		TextStyle:      "bold",
		TextColorMode:  "frequency",
		TextFixedColor: "f",
		TextFormat:     "%s",
		GridWidth:      24,
		GridHeight:     12,
	}
}

// Summary is the pixel-free view sent to browsers.
type Summary struct {
	BannerMode   string `json:"banner_mode"`
	TextStyle    string `json:"text_style"`
	HasImage     bool   `json:"has_image"`
	GridWidth    int    `json:"grid_width"`
	GridHeight   int    `json:"grid_height"`
	LogoFilename string `json:"logo_filename,omitempty"`
}

// Summarize strips the pixel payload.
func (p Profile) Summarize() Summary {
	return Summary{
		BannerMode:   p.BannerMode,
		TextStyle:    p.TextStyle,
		HasImage:     len(p.ImagePixels) > 0,
		GridWidth:    p.GridWidth,
		GridHeight:   p.GridHeight,
		LogoFilename: p.LogoFilename,
	}
}

// Store persists profiles keyed by dj_id. Safe for concurrent use.
type Store struct {
	path string

	mu       sync.Mutex
	profiles map[string]Profile
}

// NewStore creates a store backed by the JSON file at path. Sidecar
// pixel files live in a banners/ directory next to it.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		profiles: make(map[string]Profile),
	}
}

func (s *Store) pixelPath(djID string) string {
	return filepath.Join(filepath.Dir(s.path), "banners", djID+"_pixels.bin")
}

// Load reads the profile file and any pixel sidecars. A missing file is
// not an error; a missing or corrupt sidecar downgrades that profile to
// text mode.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("banner: read %s: %w", s.path, err)
	}

	var profiles map[string]Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("banner: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for djID, p := range profiles {
		if p.HasImage {
			pixels, err := readPixels(s.pixelPath(djID))
			if err != nil {
				p.HasImage = false
				p.BannerMode = "text"
			} else {
				p.ImagePixels = pixels
			}
		}
		s.profiles[djID] = p
	}
	return nil
}

// Save writes the profile file and pixel sidecars.
func (s *Store) Save() error {
	s.mu.Lock()
	forFile := make(map[string]Profile, len(s.profiles))
	pixels := make(map[string][]int32)
	for djID, p := range s.profiles {
		p.HasImage = len(p.ImagePixels) > 0
		if p.HasImage {
			pixels[djID] = p.ImagePixels
		}
		p.ImagePixels = nil
		forFile[djID] = p
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("banner: mkdir: %w", err)
	}
	for djID, px := range pixels {
		path := s.pixelPath(djID)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("banner: mkdir: %w", err)
		}
		if err := writePixels(path, px); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(forFile, "", "  ")
	if err != nil {
		return fmt.Errorf("banner: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("banner: write %s: %w", s.path, err)
	}
	return nil
}

// Get returns the profile for djID and whether one is stored.
func (s *Store) Get(djID string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[djID]
	return p, ok
}

// Set stores a profile, keeping any existing pixel grid when the new
// profile carries none.
func (s *Store) Set(djID string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ImagePixels == nil {
		if old, ok := s.profiles[djID]; ok {
			p.ImagePixels = old.ImagePixels
		}
	}
	s.profiles[djID] = p
}

// SetLogo attaches a processed pixel grid to djID's profile (creating a
// default one if absent) and switches it to image mode.
func (s *Store) SetLogo(djID string, pixels []int32, width, height int, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[djID]
	if !ok {
		p = DefaultProfile()
	}
	p.BannerMode = "image"
	p.ImagePixels = pixels
	p.GridWidth = width
	p.GridHeight = height
	p.LogoFilename = filename
	p.HasImage = true
	s.profiles[djID] = p
}

// Summaries returns all stored profiles without pixel payloads, keyed
// by dj_id.
func (s *Store) Summaries() map[string]Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Summary, len(s.profiles))
	for djID, p := range s.profiles {
		out[djID] = p.Summarize()
	}
	return out
}

// IDs returns the stored dj_ids in order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Sidecar format: consecutive big-endian int32 ARGB values, row-major.

func writePixels(path string, pixels []int32) error {
	buf := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(p))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("banner: write pixels %s: %w", path, err)
	}
	return nil
}

func readPixels(path string) ([]int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("banner: read pixels %s: %w", path, err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("banner: pixel file %s truncated", path)
	}
	pixels := make([]int32, len(data)/4)
	for i := range pixels {
		pixels[i] = int32(binary.BigEndian.Uint32(data[i*4:]))
	}
	return pixels, nil
}
