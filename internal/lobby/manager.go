package lobby

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/gamemode"
	"github.com/dcrodman/warpsync/internal/protocol"
)

var _ gamemode.Lobby = (*Lobby)(nil)

// CodeAlphabet leaves out characters that are easily confused (I, O, 0, 1).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Options configures the lobbies a Manager creates.
type Options struct {
	Logger    logrus.FieldLogger
	Notifier  Notifier
	GameModes *gamemode.Registry

	// Used when CreateAndJoinLobby carries no maximal user count.
	DefaultMaxUserCount uint32
	AutoStartDelay      time.Duration
	ResyncInterval      time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Manager owns every lobby of a server.
type Manager struct {
	opts    Options
	lobbies map[string]*Lobby
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultMaxUserCount == 0 {
		opts.DefaultMaxUserCount = 8
	}
	return &Manager{opts: opts, lobbies: make(map[string]*Lobby)}
}

// Create opens a lobby owned by owner, who becomes its only member.
func (m *Manager) Create(owner *entity.User, req *protocol.CreateAndJoinLobby) (*Lobby, error) {
	if !m.opts.GameModes.IsAvailable(req.GameMode) {
		return nil, protocol.Fail(&protocol.CreateAndJoinLobbyFailed{
			Message: fmt.Sprintf("game mode %s is not available", req.GameMode),
			Reason:  protocol.CreateAndJoinLobbyFailGameModeIsNotAvailable,
		})
	}

	minUserCount, maxUserCount := uint32(1), m.opts.DefaultMaxUserCount
	if req.MinUserCount != nil {
		minUserCount = *req.MinUserCount
	}
	if req.MaxUserCount != nil {
		maxUserCount = *req.MaxUserCount
	}
	if maxUserCount == 0 || minUserCount > maxUserCount {
		return nil, protocol.Fail(&protocol.CreateAndJoinLobbyFailed{
			Message: fmt.Sprintf("user counts %d to %d are not a valid range", minUserCount, maxUserCount),
			Reason:  protocol.CreateAndJoinLobbyFailMinimalUserCountIsBiggerThanMaximalUserCount,
		})
	}

	code, err := m.allocateCode()
	if err != nil {
		return nil, fmt.Errorf("error allocating lobby code: %w", err)
	}

	l := &Lobby{
		logger:         m.opts.Logger.WithField("lobby", code),
		notifier:       m.opts.Notifier,
		modes:          m.opts.GameModes,
		clock:          m.opts.Clock,
		code:           code,
		name:           protocol.NormalizeName(req.LobbyName),
		isPrivate:      req.IsPrivate,
		gameModeName:   req.GameMode,
		minUserCount:   minUserCount,
		maxUserCount:   maxUserCount,
		gameModeRules:  copyRules(req.GameModeRules),
		autoStartDelay: m.opts.AutoStartDelay,
		state:          protocol.LobbyOpen,
		resyncInterval: m.opts.ResyncInterval,
		observers:      make(map[uuid.UUID]*entity.Observer),
	}
	if req.IsStartingGameAutomatically != nil {
		l.isStartingGameAutomatically = *req.IsStartingGameAutomatically
	}
	m.lobbies[code] = l
	l.logger.WithField("owner", owner.GUID).Info("lobby created")

	if err := l.Join(owner); err != nil {
		delete(m.lobbies, code)
		return nil, err
	}
	return l, nil
}

// Lookup finds the open lobby with the given code.
func (m *Manager) Lookup(code string) (*Lobby, bool) {
	l, ok := m.lobbies[protocol.NormalizeLobbyCode(code)]
	if !ok || l.closed {
		return nil, false
	}
	return l, true
}

// Join adds user to the lobby with the given code.
func (m *Manager) Join(code string, user *entity.User) (*Lobby, error) {
	l, ok := m.Lookup(code)
	if !ok {
		return nil, protocol.Fail(&protocol.JoinLobbyFailed{
			Message: fmt.Sprintf("lobby %s does not exist", code),
			Reason:  protocol.JoinLobbyFailNotFound,
		})
	}
	if err := l.Join(user); err != nil {
		return nil, err
	}
	return l, nil
}

// List returns the public lobbies matching every filter of req, ordered by
// code.
func (m *Manager) List(req *protocol.ListLobbies) []protocol.LobbyView {
	name := strings.ToLower(protocol.NormalizeName(req.Name))

	views := []protocol.LobbyView{}
	for _, l := range m.sorted() {
		switch {
		case l.isPrivate:
		case name != "" && !strings.Contains(strings.ToLower(l.name), name):
		case req.GameMode != "" && l.gameModeName != req.GameMode:
		case req.ExcludeFull && l.IsFull():
		case req.ExcludeRunning && l.IsRunning():
		default:
			views = append(views, l.View())
		}
	}
	return views
}

// Lobbies returns every open lobby ordered by code.
func (m *Manager) Lobbies() []*Lobby {
	return m.sorted()
}

// Update advances every lobby by one tick and forgets the closed ones.
func (m *Manager) Update(dt time.Duration) {
	for _, l := range m.sorted() {
		l.Update(dt)
	}
	m.prune()
}

// Replicate sends every running game's state changes to its members.
func (m *Manager) Replicate(dt time.Duration) {
	for _, l := range m.sorted() {
		l.Replicate(dt)
	}
}

// CloseAll evicts every member of every lobby.
func (m *Manager) CloseAll() {
	for _, l := range m.sorted() {
		l.Close()
	}
	m.prune()
}

func (m *Manager) prune() {
	for code, l := range m.lobbies {
		if l.closed {
			delete(m.lobbies, code)
		}
	}
}

func (m *Manager) sorted() []*Lobby {
	lobbies := make([]*Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		if !l.closed {
			lobbies = append(lobbies, l)
		}
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].code < lobbies[j].code })
	return lobbies
}

// allocateCode draws random codes until one is not taken.
func (m *Manager) allocateCode() (string, error) {
	for {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := m.lobbies[code]; !taken {
			return code, nil
		}
	}
}

func randomCode() (string, error) {
	var sb strings.Builder
	size := big.NewInt(int64(len(CodeAlphabet)))
	for i := 0; i < protocol.LobbyCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		sb.WriteByte(CodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
