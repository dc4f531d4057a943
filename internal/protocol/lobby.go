package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// LobbyState is the run state of a lobby as presented to clients.
type LobbyState string

const (
	LobbyOpen    LobbyState = "Open"
	LobbyLoading LobbyState = "Loading"
	LobbyRunning LobbyState = "Running"
	LobbyEnded   LobbyState = "Ended"
)

// LobbyView is the public description of a lobby.
type LobbyView struct {
	Code                        string                 `json:"code"`
	Name                        string                 `json:"name"`
	IsPrivate                   bool                   `json:"isPrivate"`
	GameMode                    string                 `json:"gameMode"`
	MinUserCount                uint32                 `json:"minUserCount"`
	MaxUserCount                uint32                 `json:"maxUserCount"`
	UserCount                   uint32                 `json:"userCount"`
	IsStartingGameAutomatically bool                   `json:"isStartingGameAutomatically"`
	GameModeRules               map[string]interface{} `json:"gameModeRules"`
	State                       LobbyState             `json:"state"`
}

// LeaveReason explains why a user left a lobby.
type LeaveReason string

const (
	LeaveQuit         LeaveReason = "Quit"
	LeaveKicked       LeaveReason = "Kicked"
	LeaveDisconnected LeaveReason = "Disconnected"
	LeaveLobbyClosed  LeaveReason = "LobbyClosed"
)

// CreateAndJoinLobbyFailReason enumerates why CreateAndJoinLobby failed.
type CreateAndJoinLobbyFailReason string

const (
	CreateAndJoinLobbyFailUnknown                                      CreateAndJoinLobbyFailReason = "Unknown"
	CreateAndJoinLobbyFailUsernameIsNull                               CreateAndJoinLobbyFailReason = "UsernameIsNull"
	CreateAndJoinLobbyFailInvalidUsernameLength                        CreateAndJoinLobbyFailReason = "InvalidUsernameLength"
	CreateAndJoinLobbyFailLobbyNameIsNull                              CreateAndJoinLobbyFailReason = "LobbyNameIsNull"
	CreateAndJoinLobbyFailInvalidLobbyNameLength                       CreateAndJoinLobbyFailReason = "InvalidLobbyNameLength"
	CreateAndJoinLobbyFailInvalidGameMode                              CreateAndJoinLobbyFailReason = "InvalidGameMode"
	CreateAndJoinLobbyFailMinimalUserCountIsBiggerThanMaximalUserCount CreateAndJoinLobbyFailReason = "MinimalUserCountIsBiggerThanMaximalUserCount"
	CreateAndJoinLobbyFailGameModeRulesContainNull                     CreateAndJoinLobbyFailReason = "GameModeRulesContainNull"
	CreateAndJoinLobbyFailGameModeIsNotAvailable                       CreateAndJoinLobbyFailReason = "GameModeIsNotAvailable"
)

// CreateAndJoinLobby creates a lobby owned by the sender.
type CreateAndJoinLobby struct {
	Username                    string                 `json:"username"`
	LobbyName                   string                 `json:"lobbyName"`
	IsPrivate                   bool                   `json:"isPrivate"`
	GameMode                    string                 `json:"gameMode"`
	MinUserCount                *uint32                `json:"minUserCount,omitempty"`
	MaxUserCount                *uint32                `json:"maxUserCount,omitempty"`
	IsStartingGameAutomatically *bool                  `json:"isStartingGameAutomatically,omitempty"`
	GameModeRules               map[string]interface{} `json:"gameModeRules,omitempty"`
}

func (m *CreateAndJoinLobby) Validate() error {
	fail := func(reason CreateAndJoinLobbyFailReason, format string, args ...interface{}) error {
		return Fail(&CreateAndJoinLobbyFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	switch {
	case m.Username == "":
		return fail(CreateAndJoinLobbyFailUsernameIsNull, "username is missing")
	case !IsUsernameLengthValid(m.Username):
		return fail(CreateAndJoinLobbyFailInvalidUsernameLength,
			"username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	case m.LobbyName == "":
		return fail(CreateAndJoinLobbyFailLobbyNameIsNull, "lobby name is missing")
	case !IsLobbyNameLengthValid(m.LobbyName):
		return fail(CreateAndJoinLobbyFailInvalidLobbyNameLength,
			"lobby name must be between %d and %d characters", MinLobbyNameLength, MaxLobbyNameLength)
	case m.GameMode == "":
		return fail(CreateAndJoinLobbyFailInvalidGameMode, "game mode is missing")
	case m.MaxUserCount != nil && *m.MaxUserCount == 0:
		return fail(CreateAndJoinLobbyFailMinimalUserCountIsBiggerThanMaximalUserCount,
			"maximal user count must leave room for the creator")
	case m.MinUserCount != nil && m.MaxUserCount != nil && *m.MinUserCount > *m.MaxUserCount:
		return fail(CreateAndJoinLobbyFailMinimalUserCountIsBiggerThanMaximalUserCount,
			"minimal user count %d is bigger than maximal user count %d", *m.MinUserCount, *m.MaxUserCount)
	case ContainsNull(m.GameModeRules):
		return fail(CreateAndJoinLobbyFailGameModeRulesContainNull, "game mode rules contain null values")
	}
	return nil
}

// CreateAndJoinLobbyFailed rejects CreateAndJoinLobby.
type CreateAndJoinLobbyFailed struct {
	Message string                       `json:"message"`
	Reason  CreateAndJoinLobbyFailReason `json:"reason"`
}

func (m *CreateAndJoinLobbyFailed) FailureReason() string { return string(m.Reason) }

// JoinLobbyFailReason enumerates why JoinLobby failed.
type JoinLobbyFailReason string

const (
	JoinLobbyFailUnknown               JoinLobbyFailReason = "Unknown"
	JoinLobbyFailLobbyCodeIsNull       JoinLobbyFailReason = "LobbyCodeIsNull"
	JoinLobbyFailUsernameIsNull        JoinLobbyFailReason = "UsernameIsNull"
	JoinLobbyFailInvalidUsernameLength JoinLobbyFailReason = "InvalidUsernameLength"
	JoinLobbyFailNotFound              JoinLobbyFailReason = "NotFound"
	JoinLobbyFailFull                  JoinLobbyFailReason = "Full"
)

// JoinLobby adds the sender to the lobby with the given code.
type JoinLobby struct {
	LobbyCode string `json:"lobbyCode"`
	Username  string `json:"username"`
}

func (m *JoinLobby) Validate() error {
	fail := func(reason JoinLobbyFailReason, format string, args ...interface{}) error {
		return Fail(&JoinLobbyFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	switch {
	case NormalizeLobbyCode(m.LobbyCode) == "":
		return fail(JoinLobbyFailLobbyCodeIsNull, "lobby code is missing")
	case m.Username == "":
		return fail(JoinLobbyFailUsernameIsNull, "username is missing")
	case !IsUsernameLengthValid(m.Username):
		return fail(JoinLobbyFailInvalidUsernameLength,
			"username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	return nil
}

// JoinLobbyFailed rejects JoinLobby.
type JoinLobbyFailed struct {
	Message string              `json:"message"`
	Reason  JoinLobbyFailReason `json:"reason"`
}

func (m *JoinLobbyFailed) FailureReason() string { return string(m.Reason) }

// LobbyJoinAcknowledged is sent to a user that created or joined a lobby.
type LobbyJoinAcknowledged struct {
	Lobby     LobbyView  `json:"lobby"`
	OwnerGUID uuid.UUID  `json:"ownerGUID"`
	UserGUID  uuid.UUID  `json:"userGUID"`
	Users     []UserData `json:"users"`
}

// UserJoined tells the other members that a user joined their lobby.
type UserJoined struct {
	User UserData `json:"user"`
}

// UserLeft tells the remaining members that a user left their lobby.
type UserLeft struct {
	GUID   uuid.UUID   `json:"guid"`
	Reason LeaveReason `json:"reason"`
}

// LobbyLeft is sent to the user that left a lobby, whatever the reason.
type LobbyLeft struct {
	Reason  LeaveReason `json:"reason"`
	Message string      `json:"message,omitempty"`
}

// OwnerChanged tells members which user owns their lobby now.
type OwnerChanged struct {
	OwnerGUID uuid.UUID `json:"ownerGUID"`
}

// ListLobbiesFailReason enumerates why ListLobbies failed.
type ListLobbiesFailReason string

const ListLobbiesFailUnknown ListLobbiesFailReason = "Unknown"

// ListLobbies requests the public lobbies matching every given filter.
type ListLobbies struct {
	Name           string `json:"name,omitempty"`
	GameMode       string `json:"gameMode,omitempty"`
	ExcludeFull    bool   `json:"excludeFull,omitempty"`
	ExcludeRunning bool   `json:"excludeRunning,omitempty"`
}

// LobbyList answers ListLobbies.
type LobbyList struct {
	Lobbies []LobbyView `json:"lobbies"`
}

// ListLobbiesFailed rejects ListLobbies.
type ListLobbiesFailed struct {
	Message string                `json:"message"`
	Reason  ListLobbiesFailReason `json:"reason"`
}

func (m *ListLobbiesFailed) FailureReason() string { return string(m.Reason) }

// ChangeLobbyRulesFailReason enumerates why ChangeLobbyRules failed.
type ChangeLobbyRulesFailReason string

const (
	ChangeLobbyRulesFailUnknown                                      ChangeLobbyRulesFailReason = "Unknown"
	ChangeLobbyRulesFailInvalid                                      ChangeLobbyRulesFailReason = "Invalid"
	ChangeLobbyRulesFailInvalidLobbyNameLength                       ChangeLobbyRulesFailReason = "InvalidLobbyNameLength"
	ChangeLobbyRulesFailInvalidGameMode                              ChangeLobbyRulesFailReason = "InvalidGameMode"
	ChangeLobbyRulesFailGameModeIsNotAvailable                       ChangeLobbyRulesFailReason = "GameModeIsNotAvailable"
	ChangeLobbyRulesFailMinimalUserCountIsBiggerThanMaximalUserCount ChangeLobbyRulesFailReason = "MinimalUserCountIsBiggerThanMaximalUserCount"
	ChangeLobbyRulesFailMaximalUserCountIsSmallerThanUserCount       ChangeLobbyRulesFailReason = "MaximalUserCountIsSmallerThanUserCount"
	ChangeLobbyRulesFailGameModeRulesContainNull                     ChangeLobbyRulesFailReason = "GameModeRulesContainNull"
	ChangeLobbyRulesFailGameModeIsRunning                            ChangeLobbyRulesFailReason = "GameModeIsRunning"
)

// ChangeLobbyRules updates the rules of the sender's lobby. Absent fields are
// left unchanged.
type ChangeLobbyRules struct {
	Name                        *string                `json:"name,omitempty"`
	IsPrivate                   *bool                  `json:"isPrivate,omitempty"`
	GameMode                    *string                `json:"gameMode,omitempty"`
	MinUserCount                *uint32                `json:"minUserCount,omitempty"`
	MaxUserCount                *uint32                `json:"maxUserCount,omitempty"`
	IsStartingGameAutomatically *bool                  `json:"isStartingGameAutomatically,omitempty"`
	GameModeRules               map[string]interface{} `json:"gameModeRules,omitempty"`
}

func (m *ChangeLobbyRules) Validate() error {
	fail := func(reason ChangeLobbyRulesFailReason, format string, args ...interface{}) error {
		return Fail(&ChangeLobbyRulesFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	switch {
	case m.Name == nil && m.IsPrivate == nil && m.GameMode == nil && m.MinUserCount == nil &&
		m.MaxUserCount == nil && m.IsStartingGameAutomatically == nil && m.GameModeRules == nil:
		return fail(ChangeLobbyRulesFailInvalid, "no rule changes were requested")
	case m.Name != nil && !IsLobbyNameLengthValid(*m.Name):
		return fail(ChangeLobbyRulesFailInvalidLobbyNameLength,
			"lobby name must be between %d and %d characters", MinLobbyNameLength, MaxLobbyNameLength)
	case m.GameMode != nil && *m.GameMode == "":
		return fail(ChangeLobbyRulesFailInvalidGameMode, "game mode is empty")
	case m.MaxUserCount != nil && *m.MaxUserCount == 0:
		return fail(ChangeLobbyRulesFailInvalid, "maximal user count must be at least 1")
	case m.MinUserCount != nil && m.MaxUserCount != nil && *m.MinUserCount > *m.MaxUserCount:
		return fail(ChangeLobbyRulesFailMinimalUserCountIsBiggerThanMaximalUserCount,
			"minimal user count %d is bigger than maximal user count %d", *m.MinUserCount, *m.MaxUserCount)
	case ContainsNull(m.GameModeRules):
		return fail(ChangeLobbyRulesFailGameModeRulesContainNull, "game mode rules contain null values")
	}
	return nil
}

// ChangeLobbyRulesFailed rejects ChangeLobbyRules.
type ChangeLobbyRulesFailed struct {
	Message string                     `json:"message"`
	Reason  ChangeLobbyRulesFailReason `json:"reason"`
}

func (m *ChangeLobbyRulesFailed) FailureReason() string { return string(m.Reason) }

// LobbyRulesChanged tells members about the new rules of their lobby.
type LobbyRulesChanged struct {
	Lobby LobbyView `json:"lobby"`
}

// ChangeUsernameFailReason enumerates why ChangeUsername failed.
type ChangeUsernameFailReason string

const (
	ChangeUsernameFailUnknown               ChangeUsernameFailReason = "Unknown"
	ChangeUsernameFailUsernameIsNull        ChangeUsernameFailReason = "UsernameIsNull"
	ChangeUsernameFailInvalidUsernameLength ChangeUsernameFailReason = "InvalidUsernameLength"
)

// ChangeUsername renames the sender.
type ChangeUsername struct {
	NewUsername string `json:"newUsername"`
}

func (m *ChangeUsername) Validate() error {
	switch {
	case m.NewUsername == "":
		return Fail(&ChangeUsernameFailed{Message: "username is missing", Reason: ChangeUsernameFailUsernameIsNull})
	case !IsUsernameLengthValid(m.NewUsername):
		return Fail(&ChangeUsernameFailed{
			Message: fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength),
			Reason:  ChangeUsernameFailInvalidUsernameLength,
		})
	}
	return nil
}

// ChangeUsernameFailed rejects ChangeUsername.
type ChangeUsernameFailed struct {
	Message string                   `json:"message"`
	Reason  ChangeUsernameFailReason `json:"reason"`
}

func (m *ChangeUsernameFailed) FailureReason() string { return string(m.Reason) }

// UsernameChanged is sent to the renamed user and the members of its lobby.
type UsernameChanged struct {
	GUID        uuid.UUID `json:"guid"`
	NewUsername string    `json:"newUsername"`
}

// ChangeLobbyColorFailReason enumerates why ChangeLobbyColor failed.
type ChangeLobbyColorFailReason string

const (
	ChangeLobbyColorFailUnknown ChangeLobbyColorFailReason = "Unknown"
	ChangeLobbyColorFailInvalid ChangeLobbyColorFailReason = "Invalid"
)

// ChangeLobbyColor changes the color the sender is shown with in its lobby.
type ChangeLobbyColor struct {
	NewLobbyColor *Color `json:"newLobbyColor"`
}

func (m *ChangeLobbyColor) Validate() error {
	if m.NewLobbyColor == nil {
		return Fail(&ChangeLobbyColorFailed{Message: "lobby color is missing", Reason: ChangeLobbyColorFailInvalid})
	}
	return nil
}

// ChangeLobbyColorFailed rejects ChangeLobbyColor.
type ChangeLobbyColorFailed struct {
	Message string                     `json:"message"`
	Reason  ChangeLobbyColorFailReason `json:"reason"`
}

func (m *ChangeLobbyColorFailed) FailureReason() string { return string(m.Reason) }

// LobbyColorChanged is sent to the members of the recolored user's lobby.
type LobbyColorChanged struct {
	GUID          uuid.UUID `json:"guid"`
	NewLobbyColor Color     `json:"newLobbyColor"`
}

// KickUserFailReason enumerates why KickUser failed.
type KickUserFailReason string

const (
	KickUserFailUnknown         KickUserFailReason = "Unknown"
	KickUserFailInvalidUserGUID KickUserFailReason = "InvalidUserGUID"
	KickUserFailFailedExecution KickUserFailReason = "FailedExecution"
)

// KickUser removes another member from the sender's lobby. UserGUID is kept
// as text so a malformed guid fails validation instead of decoding.
type KickUser struct {
	UserGUID string `json:"userGUID"`
	Reason   string `json:"reason,omitempty"`

	guid uuid.UUID
}

func (m *KickUser) Validate() error {
	guid, err := uuid.Parse(m.UserGUID)
	if err != nil || guid == uuid.Nil {
		return Fail(&KickUserFailed{
			Message: fmt.Sprintf("invalid user guid %q", m.UserGUID),
			Reason:  KickUserFailInvalidUserGUID,
		})
	}
	m.guid = guid
	return nil
}

// Target is the guid of the user to kick, set by Validate.
func (m *KickUser) Target() uuid.UUID { return m.guid }

// KickUserFailed rejects KickUser.
type KickUserFailed struct {
	Message string             `json:"message"`
	Reason  KickUserFailReason `json:"reason"`
}

func (m *KickUserFailed) FailureReason() string { return string(m.Reason) }

// QuitLobbyFailReason enumerates why QuitLobby failed.
type QuitLobbyFailReason string

const QuitLobbyFailUnknown QuitLobbyFailReason = "Unknown"

// QuitLobby removes the sender from its lobby.
type QuitLobby struct{}

// QuitLobbyFailed rejects QuitLobby.
type QuitLobbyFailed struct {
	Message string              `json:"message"`
	Reason  QuitLobbyFailReason `json:"reason"`
}

func (m *QuitLobbyFailed) FailureReason() string { return string(m.Reason) }

// CloseLobbyFailReason enumerates why CloseLobby failed.
type CloseLobbyFailReason string

const CloseLobbyFailUnknown CloseLobbyFailReason = "Unknown"

// CloseLobby evicts every member of the sender's lobby and removes it.
type CloseLobby struct{}

// CloseLobbyFailed rejects CloseLobby.
type CloseLobbyFailed struct {
	Message string               `json:"message"`
	Reason  CloseLobbyFailReason `json:"reason"`
}

func (m *CloseLobbyFailed) FailureReason() string { return string(m.Reason) }
