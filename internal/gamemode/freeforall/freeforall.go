// Package freeforall is the stock game mode: every user for themselves, the
// most kills wins.
package freeforall

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/gamemode"
)

const (
	Name = "FreeForAll"

	// Rule keys.
	RuleMaxHealth = "maxHealth"
	RuleKillLimit = "killLimit"

	DefaultMaxHealth = 100
)

// Resource offers the free-for-all mode.
type Resource struct{}

func (Resource) Name() string { return "warpsync" }

func (Resource) RegisterGameModes(registrar gamemode.Registrar) {
	registrar.Register(Name, func() gamemode.GameMode { return New() })
}

// Mode tallies kills. Users die once the damage they took reaches the
// maxHealth rule; the game ends when a user reaches killLimit (0 for no
// limit).
type Mode struct {
	gamemode.Base

	lobby     gamemode.Lobby
	maxHealth float64
	killLimit int

	health map[uuid.UUID]float64
	kills  map[uuid.UUID]int
	deaths map[uuid.UUID]int
}

func New() *Mode {
	return &Mode{
		maxHealth: DefaultMaxHealth,
		health:    make(map[uuid.UUID]float64),
		kills:     make(map[uuid.UUID]int),
		deaths:    make(map[uuid.UUID]int),
	}
}

func (m *Mode) OnInitialized(_ gamemode.Resource, lobby gamemode.Lobby) {
	m.lobby = lobby
	rules := lobby.GameModeRules()
	if v, ok := number(rules, RuleMaxHealth); ok && v > 0 {
		m.maxHealth = v
	}
	if v, ok := number(rules, RuleKillLimit); ok && v > 0 {
		m.killLimit = int(v)
	}
}

func (m *Mode) OnUserSpawned(user *entity.User) {
	m.health[user.GUID] = m.maxHealth
	if _, ok := m.kills[user.GUID]; !ok {
		m.kills[user.GUID] = 0
		m.deaths[user.GUID] = 0
	}
}

func (m *Mode) OnUserLeft(user *entity.User) {
	delete(m.health, user.GUID)
}

func (m *Mode) OnUserHit(hit gamemode.Hit) {
	health, alive := m.health[hit.Victim.GUID]
	if !alive || hit.Victim.IsSpectating.Get() {
		return
	}

	health -= float64(hit.Damage)
	m.health[hit.Victim.GUID] = health
	if health <= 0 {
		_ = m.lobby.KillUser(hit.Victim.GUID, hit.Issuer.GUID)
	}
}

func (m *Mode) OnUserKilled(victim, issuer *entity.User) {
	m.deaths[victim.GUID]++
	m.health[victim.GUID] = m.maxHealth
	victim.ResetGameState()

	if issuer == nil || issuer.GUID == victim.GUID {
		return
	}
	m.kills[issuer.GUID]++
	if m.killLimit > 0 && m.kills[issuer.GUID] == m.killLimit {
		_ = m.lobby.RequestStop(0)
	}
}

// Health returns the remaining health of a user.
func (m *Mode) Health(guid uuid.UUID) float64 {
	return m.health[guid]
}

func (m *Mode) Results() gamemode.Results {
	results := gamemode.Results{
		Aggregate: map[string]interface{}{},
		PerUser:   make(map[uuid.UUID]map[string]interface{}, len(m.kills)),
	}

	guids := make([]uuid.UUID, 0, len(m.kills))
	totalKills := 0
	for guid, kills := range m.kills {
		guids = append(guids, guid)
		totalKills += kills
		results.PerUser[guid] = map[string]interface{}{
			"kills":  kills,
			"deaths": m.deaths[guid],
		}
	}

	// Most kills first, then fewest deaths; guid order breaks ties.
	sort.Slice(guids, func(i, j int) bool {
		a, b := guids[i], guids[j]
		if m.kills[a] != m.kills[b] {
			return m.kills[a] > m.kills[b]
		}
		if m.deaths[a] != m.deaths[b] {
			return m.deaths[a] < m.deaths[b]
		}
		return a.String() < b.String()
	})

	results.Aggregate["totalKills"] = totalKills
	if len(guids) > 0 && m.kills[guids[0]] > 0 {
		results.Aggregate["winner"] = guids[0].String()
	}
	if m.lobby != nil {
		results.Aggregate["duration"] = m.lobby.GameTime().Seconds()
	}
	return results
}

func number(rules map[string]interface{}, key string) (float64, bool) {
	switch v := rules[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
