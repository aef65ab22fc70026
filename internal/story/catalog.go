// Package story implements the segment catalog and the story progression state machine.
package story

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Segment is one immutable unit of narrative content.
type Segment struct {
	ID                 string   `yaml:"id"`
	RunTime            int      `yaml:"run_time"` // minutes of elapsed exercise
	Title              string   `yaml:"title"`
	Text               string   `yaml:"text"`
	Options            []string `yaml:"options,omitempty"`
	IsHeartRateWarning bool     `yaml:"heart_rate_warning"`
	IsChaseScene       bool     `yaml:"chase_scene"`
	IsFinale           bool     `yaml:"finale"`
	BackgroundImage    string   `yaml:"background,omitempty"`
}

// HasOptions reports whether the segment waits for a user choice.
func (s Segment) HasOptions() bool {
	return len(s.Options) > 0
}

type catalogFile struct {
	Segments []Segment `yaml:"segments"`
}

// Catalog is an ordered, read-only list of segments sorted by RunTime.
type Catalog struct {
	segments []Segment
}

var segmentNamespace = uuid.MustParse("5b1b8a39-7d1e-4a49-9a57-3f3f0c1e6a10")

// NewCatalog validates and copies segments into a catalog.
func NewCatalog(segments []Segment) (*Catalog, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	out := make([]Segment, len(segments))
	seen := make(map[string]int, len(segments))
	for i, seg := range segments {
		if i > 0 && seg.RunTime < segments[i-1].RunTime {
			return nil, fmt.Errorf("segment %d (%q) has run time %d before previous %d", i, seg.Title, seg.RunTime, segments[i-1].RunTime)
		}
		if seg.RunTime < 0 {
			return nil, fmt.Errorf("segment %d (%q) has negative run time", i, seg.Title)
		}
		if seg.ID == "" {
			seg.ID = uuid.NewSHA1(segmentNamespace, []byte(fmt.Sprintf("%d\x00%s\x00%s", i, seg.Title, seg.Text))).String()
		}
		if prev, ok := seen[seg.ID]; ok {
			return nil, fmt.Errorf("segment %d reuses id %q of segment %d", i, seg.ID, prev)
		}
		seen[seg.ID] = i
		seg.Options = slices.Clone(seg.Options)
		out[i] = seg
	}
	return &Catalog{segments: out}, nil
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return NewCatalog(file.Segments)
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
})

// DefaultCatalog returns the built-in "Jade Amulet" story. It is parsed once per process.
func DefaultCatalog() (*Catalog, error) {
	return loadDefault()
}

// Len returns the number of segments.
func (c *Catalog) Len() int {
	return len(c.segments)
}

// SegmentAt returns the segment at index, clamped to the valid range.
func (c *Catalog) SegmentAt(index int) Segment {
	if index < 0 {
		index = 0
	}
	if index >= len(c.segments) {
		index = len(c.segments) - 1
	}
	seg := c.segments[index]
	seg.Options = slices.Clone(seg.Options)
	return seg
}

// LastEligibleFor returns the highest index whose RunTime <= elapsedMinutes, or 0.
func (c *Catalog) LastEligibleFor(elapsedMinutes int) int {
	// first index strictly after the eligible range
	idx := sort.Search(len(c.segments), func(i int) bool {
		return c.segments[i].RunTime > elapsedMinutes
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// Segments returns a copy of all segments in order.
func (c *Catalog) Segments() []Segment {
	out := make([]Segment, len(c.segments))
	for i := range c.segments {
		out[i] = c.SegmentAt(i)
	}
	return out
}
