package entity

import (
	"github.com/dcrodman/warpsync/internal/protocol"
)

// UserEntityType is the entity type of every user.
const UserEntityType = "User"

// User is an authenticated identity. It is an entity in the lobby's world and
// refers to its peer and lobby by id only.
type User struct {
	*Entity

	PeerID     string
	Username   string
	LobbyColor protocol.Color
	Token      string
	// LobbyCode is empty while the user is in no lobby.
	LobbyCode string
}

func NewUser(peerID string) *User {
	return &User{
		Entity:     New(UserEntityType),
		PeerID:     peerID,
		LobbyColor: protocol.White,
	}
}

// View is the public description of the user.
func (u *User) View() protocol.UserData {
	return protocol.UserData{
		GUID:       u.GUID,
		Username:   u.Username,
		LobbyColor: u.LobbyColor,
	}
}

func (u *User) IsInLobby() bool {
	return u.LobbyCode != ""
}

// ResetGameState puts the entity back into its spawn state.
func (u *User) ResetGameState() {
	u.Position.Set(protocol.Vector3{})
	u.Rotation.Set(protocol.IdentityRotation)
	u.Velocity.Set(protocol.Vector3{})
	u.AngularVelocity.Set(protocol.Vector3{})
	u.IsSpectating.Set(false)
	u.SetActions(nil)
	u.IsResyncRequested = true
}
