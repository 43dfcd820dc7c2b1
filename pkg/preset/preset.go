// Package preset stores shared content-generation presets in the key-value
// backend. The whole collection lives under one record so every device sees
// the same state, with a built-in fallback set served alongside it.
package preset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gencohq/genco/pkg/kv"
)

// RecordKey is the single key-value record holding all user presets.
const RecordKey = "genco_presets"

// Bundle is one preset: the knobs a content-generation request starts from.
type Bundle struct {
	Label           string   `json:"label"`
	Platform        string   `json:"platform"`
	Goal            []string `json:"goal"`
	Tone            string   `json:"tone"`
	Length          string   `json:"length"`
	CTA             string   `json:"cta"`
	Structure       string   `json:"structure"`
	HashtagCount    int      `json:"hashtagCount"`
	VariationCount  int      `json:"variationCount,omitempty"`
	AudioStyle      string   `json:"audioStyle"`
	MusicMood       string   `json:"musicMood"`
	AudioGenre      string   `json:"audioGenre"`
	MusicSuggestion string   `json:"musicSuggestion"`
	AudioLength     string   `json:"audioLength"`
}

// Defaults is the built-in preset catalog, always served alongside user
// presets so fresh installs have working starting points.
func Defaults() map[string]Bundle {
	return map[string]Bundle{
		"Informal": {
			Label: "Informal", Platform: "youtube", Goal: []string{"Viewer", "Viral"},
			Tone: "santai, friendly", Length: "short", CTA: "Follow for more",
			Structure: "Hook -> Benefit -> CTA", HashtagCount: 8,
			AudioStyle: "upbeat", MusicMood: "exciting, energetic", AudioGenre: "pop, electronic",
			MusicSuggestion: "Upbeat pop dengan beat yang catchy, cocok untuk comedy/relatable content",
			AudioLength:     "15s",
		},
		"Jualan": {
			Label: "Jualan", Platform: "tiktok", Goal: []string{"FYP", "Penjualan"},
			Tone: "persuasif, santai", Length: "short", CTA: "Beli sekarang",
			Structure: "Hook -> Benefit -> Social proof -> CTA", HashtagCount: 10,
			AudioStyle: "energetic", MusicMood: "motivational, exciting", AudioGenre: "pop, hiphop, electronic",
			MusicSuggestion: "Trendy music dengan vibe premium, mendorong action/konversi",
			AudioLength:     "30s",
		},
		"Edukasi": {
			Label: "Edukasi", Platform: "youtube", Goal: []string{"SEO", "Viewer"},
			Tone: "informative, clear", Length: "medium", CTA: "Pelajari lebih lanjut",
			Structure: "Hook -> 2 tips -> CTA", HashtagCount: 6,
			AudioStyle: "calm", MusicMood: "focusing, professional", AudioGenre: "ambient, lofi, classical",
			MusicSuggestion: "Background musik yang tidak mengganggu, fokus ke narasi",
			AudioLength:     "flexible",
		},
		"TikTokFYP": {
			Label: "TikTok FYP", Platform: "tiktok", Goal: []string{"FYP", "Viral", "Follower"},
			Tone: "energetic, hooky, relatable", Length: "short", CTA: "Follow & save",
			Structure: "Hook 3 detik -> Value -> CTA", HashtagCount: 12, VariationCount: 3,
			AudioStyle: "upbeat", MusicMood: "trending, viral", AudioGenre: "pop, hiphop, electronic",
			MusicSuggestion: "Musik trending di TikTok saat ini, mengikuti viral sound",
			AudioLength:     "15s-30s",
		},
		"ReelsViral": {
			Label: "Reels Viral", Platform: "instagram", Goal: []string{"FYP", "Viral", "Follower"},
			Tone: "energetic, aspirational", Length: "short", CTA: "Follow for more",
			Structure: "Hook -> Story/Value -> CTA", HashtagCount: 15, VariationCount: 3,
			AudioStyle: "dramatic", MusicMood: "exciting, surprising", AudioGenre: "electronic, synth, pop",
			MusicSuggestion: "High-energy build-up music dengan plot twist element",
			AudioLength:     "15s-30s",
		},
		"FollowerGrowth": {
			Label: "Follower Growth", Platform: "youtube", Goal: []string{"Follower", "Viewer", "Viral"},
			Tone: "friendly, engaging", Length: "short", CTA: "Subscribe & like",
			Structure: "Hook -> Benefit -> CTA follow/subscribe", HashtagCount: 8, VariationCount: 3,
			AudioStyle: "engaging", MusicMood: "motivational, relatable", AudioGenre: "pop, hiphop, lofi",
			MusicSuggestion: "Music yang relatable dengan target audience, encourage follow",
			AudioLength:     "30s",
		},
	}
}

// record is the stored shape. Preset bodies stay raw so saving never mangles
// fields this server version doesn't know about.
type record struct {
	UserPresets map[string]json.RawMessage `json:"userPresets"`
	Timestamp   int64                      `json:"timestamp,omitempty"`
}

var ErrNotFound = errors.New("preset: not found")

type Store struct {
	KV kv.Store

	// Now stamps saves; nil means time.Now.
	Now func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Load returns the user presets. A missing record is an empty collection,
// not an error; a backend failure is.
func (s *Store) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.UserPresets, nil
}

func (s *Store) load(ctx context.Context) (record, error) {
	empty := record{UserPresets: map[string]json.RawMessage{}}
	if s.KV == nil {
		return empty, errors.New("preset: no key-value backend bound")
	}
	raw, err := s.KV.Get(ctx, RecordKey)
	if errors.Is(err, kv.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("load presets: %w", err)
	}
	return parseRecord([]byte(raw))
}

// parseRecord handles both the current envelope and the legacy flat format
// where the record was the preset map itself.
func parseRecord(raw []byte) (record, error) {
	empty := record{UserPresets: map[string]json.RawMessage{}}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return empty, fmt.Errorf("parse presets: %w", err)
	}
	if _, ok := top["userPresets"]; ok {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return empty, fmt.Errorf("parse presets: %w", err)
		}
		if rec.UserPresets == nil {
			rec.UserPresets = map[string]json.RawMessage{}
		}
		return rec, nil
	}
	if _, versioned := top["_version"]; versioned {
		return empty, nil
	}
	return record{UserPresets: top}, nil
}

// Save replaces the whole user-preset collection.
func (s *Store) Save(ctx context.Context, presets map[string]json.RawMessage) error {
	if s.KV == nil {
		return errors.New("preset: no key-value backend bound")
	}
	if presets == nil {
		presets = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(record{UserPresets: presets, Timestamp: s.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	if err := s.KV.Put(ctx, RecordKey, string(raw)); err != nil {
		return fmt.Errorf("save presets: %w", err)
	}
	return nil
}

// Delete removes one preset by key. ErrNotFound when the key isn't stored;
// defaults are not deletable.
func (s *Store) Delete(ctx context.Context, key string) error {
	rec, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := rec.UserPresets[key]; !ok {
		return ErrNotFound
	}
	delete(rec.UserPresets, key)
	return s.Save(ctx, rec.UserPresets)
}
