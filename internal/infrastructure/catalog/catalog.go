// Package catalog loads the content catalogue (modules, missions,
// achievements, level titles and unlock rule overrides) from YAML, checks it
// and seeds it into a store.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
)

// missionNamespace derives stable ids for missions declared without one, so
// seeding the same file twice upserts instead of duplicating.
var missionNamespace = uuid.MustParse("6f1d3c2a-5b7e-4c1d-9a8f-2e4b6d8c0a11")

// ══════════════════════════════════════════════════════════════════════════════
// FILE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type fileSpec struct {
	Version      int               `yaml:"version"`
	Modules      []moduleSpec      `yaml:"modules"`
	Missions     []missionSpec     `yaml:"missions"`
	Achievements []achievementSpec `yaml:"achievements"`
	LevelTitles  []levelTitleSpec  `yaml:"level_titles"`
	UnlockRules  []unlockRuleSpec  `yaml:"unlock_rules"`
}

type moduleSpec struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Order       int    `yaml:"order"`
	XPRequired  int    `yaml:"xp_required"`
	State       string `yaml:"state"`
}

type missionSpec struct {
	ID            string                `yaml:"id"`
	Module        string                `yaml:"module"`
	Title         string                `yaml:"title"`
	Description   string                `yaml:"description"`
	XPReward      *int                  `yaml:"xp_reward"`
	RequiredLevel int                   `yaml:"required_level"`
	Frequency     string                `yaml:"frequency"`
	Kind          string                `yaml:"kind"`
	Requirements  []mission.Requirement `yaml:"requirements"`
}

type achievementSpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	XPReward    *int   `yaml:"xp_reward"`
}

type levelTitleSpec struct {
	Level int    `yaml:"level"`
	Title string `yaml:"title"`
}

type unlockRuleSpec struct {
	Module           string   `yaml:"module"`
	MinXP            *int     `yaml:"min_xp"`
	RequiredMissions []string `yaml:"required_missions"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is a decoded, normalised catalogue.
type Catalog struct {
	Modules      []module.Module
	Missions     []mission.Mission
	Achievements []achievement.Achievement
	Titles       map[int]string
	Rules        map[string]module.UnlockSpec
}

// Options tunes defaults applied while decoding.
type Options struct {
	// DefaultMissionXP is used for missions without xp_reward.
	DefaultMissionXP int

	// DefaultAchievementXP is used for achievements without xp_reward.
	DefaultAchievementXP int

	// Now stamps created_at. Missions keep file order through per-entry offsets.
	Now time.Time
}

// DefaultOptions returns the stock defaults.
func DefaultOptions() Options {
	return Options{
		DefaultMissionXP:     50,
		DefaultAchievementXP: achievement.DefaultXPReward,
	}
}

// Load reads and parses a catalogue file.
func Load(path string, opts Options) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", path, err)
	}
	return Parse(data, opts)
}

// Parse decodes a catalogue document and normalises it: module ids are
// slugged, missions without a kind get one inferred from frequency and
// title, and missing rewards take the configured defaults. The result is not
// validated; call Validate.
func Parse(data []byte, opts Options) (*Catalog, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, shared.WrapError("catalog", "Parse", shared.ErrValidation, "malformed catalogue", err)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	c := &Catalog{
		Titles: make(map[int]string, len(spec.LevelTitles)),
		Rules:  make(map[string]module.UnlockSpec, len(spec.UnlockRules)),
	}

	for _, ms := range spec.Modules {
		m, err := ms.toModule()
		if err != nil {
			return nil, err
		}
		c.Modules = append(c.Modules, m)
	}
	module.SortByOrder(c.Modules)

	for i, ms := range spec.Missions {
		m, err := ms.toMission(opts, opts.Now.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return nil, err
		}
		c.Missions = append(c.Missions, m)
	}

	for _, as := range spec.Achievements {
		a := achievement.Achievement{
			ID:          strings.TrimSpace(as.ID),
			Name:        as.Name,
			Description: as.Description,
			XPReward:    opts.DefaultAchievementXP,
		}
		if a.ID == "" {
			a.ID = slug.Make(as.Name)
		}
		if as.XPReward != nil {
			a.XPReward = *as.XPReward
		}
		c.Achievements = append(c.Achievements, a)
	}

	for _, lt := range spec.LevelTitles {
		c.Titles[lt.Level] = lt.Title
	}

	for _, r := range spec.UnlockRules {
		c.Rules[moduleID(r.Module)] = module.UnlockSpec{
			MinXP:            r.MinXP,
			RequiredMissions: r.RequiredMissions,
		}
	}
	return c, nil
}

// moduleID normalises a module reference: "Propósito de Vida" → "proposito-de-vida".
func moduleID(s string) string {
	return slug.Make(strings.TrimSpace(s))
}

func (ms moduleSpec) toModule() (module.Module, error) {
	id := ms.ID
	if strings.TrimSpace(id) == "" {
		id = ms.Title
	}
	m := module.Module{
		ID:          moduleID(id),
		Title:       ms.Title,
		Description: ms.Description,
		Order:       ms.Order,
		XPRequired:  ms.XPRequired,
		State:       module.StateLocked,
	}
	if ms.State != "" {
		st, err := module.ParseState(ms.State)
		if err != nil {
			return module.Module{}, err
		}
		m.State = st
	}
	return m, nil
}

func (ms missionSpec) toMission(opts Options, created time.Time) (mission.Mission, error) {
	freq, err := mission.ParseFrequency(ms.Frequency)
	if err != nil {
		return mission.Mission{}, err
	}
	kind, err := mission.ParseKind(ms.Kind)
	if err != nil {
		return mission.Mission{}, err
	}
	if kind == "" {
		kind = mission.InferKind(freq, ms.Title)
	}

	m := mission.Mission{
		ID:            strings.TrimSpace(ms.ID),
		Title:         ms.Title,
		Description:   ms.Description,
		XPReward:      opts.DefaultMissionXP,
		RequiredLevel: ms.RequiredLevel,
		Frequency:     freq,
		Kind:          kind,
		CreatedAt:     created,
	}
	if ms.Module != "" {
		m.ModuleID = moduleID(ms.Module)
	}
	if m.ID == "" {
		m.ID = uuid.NewSHA1(missionNamespace, []byte(m.ModuleID+"/"+ms.Title)).String()
	}
	if ms.XPReward != nil {
		m.XPReward = *ms.XPReward
	}
	if m.RequiredLevel == 0 {
		m.RequiredLevel = 1
	}

	for _, r := range ms.Requirements {
		r.Type = mission.RequirementType(strings.ToLower(strings.TrimSpace(string(r.Type))))
		switch r.Type {
		case mission.RequirementModule:
			r.ID = moduleID(r.ID)
		case mission.RequirementPillar:
			// Unknown pillars are reported by Validate.
			if p, err := declaration.ParsePillar(r.ID); err == nil {
				r.ID = string(p)
			}
		}
		m.Requirements = append(m.Requirements, r)
	}
	return m, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate checks every entry and every cross reference, and reports all
// problems at once.
func (c *Catalog) Validate() error {
	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(c.Modules) == 0 {
		problems = append(problems, "catalogue has no modules")
	}
	add(module.ValidateCatalog(c.Modules))

	modules := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		modules[m.ID] = true
	}
	missions := make(map[string]bool, len(c.Missions))
	for _, m := range c.Missions {
		if missions[m.ID] {
			problems = append(problems, fmt.Sprintf("duplicate mission id %q", m.ID))
		}
		missions[m.ID] = true
	}

	for _, m := range c.Missions {
		add(m.Validate())
		if !m.IsGlobal() && !modules[m.ModuleID] {
			problems = append(problems, fmt.Sprintf("mission %q: unknown module %q", m.ID, m.ModuleID))
		}
		for _, r := range m.Requirements {
			switch r.Type {
			case mission.RequirementModule:
				if !modules[r.ID] {
					problems = append(problems, fmt.Sprintf("mission %q: requires unknown module %q", m.ID, r.ID))
				}
			case mission.RequirementMission:
				if !missions[r.ID] {
					problems = append(problems, fmt.Sprintf("mission %q: requires unknown mission %q", m.ID, r.ID))
				}
				if r.ID == m.ID {
					problems = append(problems, fmt.Sprintf("mission %q: requires itself", m.ID))
				}
			}
		}
	}

	badges := make(map[string]bool, len(c.Achievements))
	for _, a := range c.Achievements {
		add(a.Validate())
		if badges[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate achievement id %q", a.ID))
		}
		badges[a.ID] = true
	}

	for level := range c.Titles {
		if level < 1 {
			problems = append(problems, fmt.Sprintf("level title for level %d: levels start at 1", level))
		}
	}

	for id, spec := range c.Rules {
		if !modules[id] {
			problems = append(problems, fmt.Sprintf("unlock rule for unknown module %q", id))
		}
		if spec.MinXP != nil && *spec.MinXP < 0 {
			problems = append(problems, fmt.Sprintf("unlock rule for %q: min_xp cannot be negative", id))
		}
		for _, mid := range spec.RequiredMissions {
			if !missions[mid] {
				problems = append(problems, fmt.Sprintf("unlock rule for %q: unknown mission %q", id, mid))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return shared.Validation("catalog", "Validate",
		"invalid catalogue:\n  - "+strings.Join(problems, "\n  - "))
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME WIRING
// ══════════════════════════════════════════════════════════════════════════════

// Apply installs the unlock overrides into reg and the level titles into
// titles. Either may be nil.
func (c *Catalog) Apply(reg *module.Registry, titles *profile.TitleBook) {
	if reg != nil {
		rules := make(map[string]module.Rule, len(c.Rules))
		for id, spec := range c.Rules {
			rules[id] = spec.Rule()
		}
		reg.Replace(rules)
	}
	if titles != nil {
		titles.Reload(c.Titles)
	}
}

// TitleBook builds a title book from the catalogue's level titles.
func (c *Catalog) TitleBook() *profile.TitleBook {
	return profile.NewTitleBook(c.Titles, profile.DefaultTitle)
}
