package protocol

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func uint32Ptr(v uint32) *uint32 { return &v }

// failureReason unwraps the reason of a family failure returned by Validate.
func failureReason(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected a *Failure, got %T: %v", err, err)
	}
	reply, ok := failure.Reply.(interface{ FailureReason() string })
	if !ok {
		t.Fatalf("failure reply %T has no reason", failure.Reply)
	}
	return reply.FailureReason()
}

func TestIsUsernameLengthValid(t *testing.T) {
	tests := map[string]struct {
		username string
		want     bool
	}{
		"single character":        {username: "a", want: true},
		"maximum length":          {username: strings.Repeat("x", MaxUsernameLength), want: true},
		"too long":                {username: strings.Repeat("x", MaxUsernameLength+1), want: false},
		"only whitespace":         {username: "   ", want: false},
		"multibyte runes":         {username: strings.Repeat("é", MaxUsernameLength), want: true},
		"decomposed accents fold": {username: strings.Repeat("e\u0301", MaxUsernameLength), want: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := IsUsernameLengthValid(tt.username); got != tt.want {
				t.Errorf("IsUsernameLengthValid(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}

func TestAuthentication_Validate(t *testing.T) {
	if reason := failureReason(t, (&Authentication{}).Validate()); reason != string(AuthenticationFailVersionIsNull) {
		t.Errorf("expected VersionIsNull, got %s", reason)
	}
	if err := (&Authentication{Version: Version}).Validate(); err != nil {
		t.Errorf("expected valid authentication, got %v", err)
	}
}

func TestCreateAndJoinLobby_Validate(t *testing.T) {
	valid := func() *CreateAndJoinLobby {
		return &CreateAndJoinLobby{Username: "alice", LobbyName: "friday night", GameMode: "FreeForAll"}
	}

	tests := []struct {
		name   string
		modify func(m *CreateAndJoinLobby)
		want   CreateAndJoinLobbyFailReason
	}{
		{
			name:   "valid request",
			modify: func(m *CreateAndJoinLobby) {},
			want:   "",
		},
		{
			name:   "missing username",
			modify: func(m *CreateAndJoinLobby) { m.Username = "" },
			want:   CreateAndJoinLobbyFailUsernameIsNull,
		},
		{
			name:   "username too long",
			modify: func(m *CreateAndJoinLobby) { m.Username = strings.Repeat("a", 40) },
			want:   CreateAndJoinLobbyFailInvalidUsernameLength,
		},
		{
			name:   "missing lobby name",
			modify: func(m *CreateAndJoinLobby) { m.LobbyName = "" },
			want:   CreateAndJoinLobbyFailLobbyNameIsNull,
		},
		{
			name:   "lobby name too long",
			modify: func(m *CreateAndJoinLobby) { m.LobbyName = strings.Repeat("a", 65) },
			want:   CreateAndJoinLobbyFailInvalidLobbyNameLength,
		},
		{
			name:   "missing game mode",
			modify: func(m *CreateAndJoinLobby) { m.GameMode = "" },
			want:   CreateAndJoinLobbyFailInvalidGameMode,
		},
		{
			name: "minimum above maximum",
			modify: func(m *CreateAndJoinLobby) {
				m.MinUserCount = uint32Ptr(5)
				m.MaxUserCount = uint32Ptr(2)
			},
			want: CreateAndJoinLobbyFailMinimalUserCountIsBiggerThanMaximalUserCount,
		},
		{
			name:   "zero maximum",
			modify: func(m *CreateAndJoinLobby) { m.MaxUserCount = uint32Ptr(0) },
			want:   CreateAndJoinLobbyFailMinimalUserCountIsBiggerThanMaximalUserCount,
		},
		{
			name:   "null rule value",
			modify: func(m *CreateAndJoinLobby) { m.GameModeRules = map[string]interface{}{"rounds": nil} },
			want:   CreateAndJoinLobbyFailGameModeRulesContainNull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid()
			tt.modify(msg)
			if reason := failureReason(t, msg.Validate()); reason != string(tt.want) {
				t.Errorf("expected reason %q, got %q", tt.want, reason)
			}
		})
	}
}

func TestJoinLobby_Validate(t *testing.T) {
	tests := map[string]struct {
		msg  JoinLobby
		want JoinLobbyFailReason
	}{
		"valid":         {msg: JoinLobby{LobbyCode: "abc234", Username: "bob"}},
		"missing code":  {msg: JoinLobby{LobbyCode: "  ", Username: "bob"}, want: JoinLobbyFailLobbyCodeIsNull},
		"missing name":  {msg: JoinLobby{LobbyCode: "ABC234"}, want: JoinLobbyFailUsernameIsNull},
		"name too long": {msg: JoinLobby{LobbyCode: "ABC234", Username: strings.Repeat("b", 33)}, want: JoinLobbyFailInvalidUsernameLength},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if reason := failureReason(t, tt.msg.Validate()); reason != string(tt.want) {
				t.Errorf("expected reason %q, got %q", tt.want, reason)
			}
		})
	}
}

func TestChangeLobbyRules_Validate(t *testing.T) {
	name := strings.Repeat("n", 70)
	empty := ""
	tests := map[string]struct {
		msg  ChangeLobbyRules
		want ChangeLobbyRulesFailReason
	}{
		"no changes":      {msg: ChangeLobbyRules{}, want: ChangeLobbyRulesFailInvalid},
		"name too long":   {msg: ChangeLobbyRules{Name: &name}, want: ChangeLobbyRulesFailInvalidLobbyNameLength},
		"empty game mode": {msg: ChangeLobbyRules{GameMode: &empty}, want: ChangeLobbyRulesFailInvalidGameMode},
		"counts reversed": {msg: ChangeLobbyRules{MinUserCount: uint32Ptr(3), MaxUserCount: uint32Ptr(1)}, want: ChangeLobbyRulesFailMinimalUserCountIsBiggerThanMaximalUserCount},
		"null rule":       {msg: ChangeLobbyRules{GameModeRules: map[string]interface{}{"x": nil}}, want: ChangeLobbyRulesFailGameModeRulesContainNull},
		"only maximum":    {msg: ChangeLobbyRules{MaxUserCount: uint32Ptr(4)}},
		"zero maximum":    {msg: ChangeLobbyRules{MaxUserCount: uint32Ptr(0)}, want: ChangeLobbyRulesFailInvalid},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if reason := failureReason(t, tt.msg.Validate()); reason != string(tt.want) {
				t.Errorf("expected reason %q, got %q", tt.want, reason)
			}
		})
	}
}

func TestKickUser_Validate(t *testing.T) {
	guid := uuid.New()
	tests := map[string]struct {
		payload string
		want    KickUserFailReason
	}{
		"valid guid":     {payload: `{"messageType":"KickUser","userGUID":"` + guid.String() + `"}`},
		"not a guid":     {payload: `{"messageType":"KickUser","userGUID":"not-a-guid"}`, want: KickUserFailInvalidUserGUID},
		"nil guid":       {payload: `{"messageType":"KickUser","userGUID":"` + uuid.Nil.String() + `"}`, want: KickUserFailInvalidUserGUID},
		"missing guid":   {payload: `{"messageType":"KickUser"}`, want: KickUserFailInvalidUserGUID},
		"with a message": {payload: `{"messageType":"KickUser","userGUID":"` + guid.String() + `","reason":"afk"}`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			msg := &KickUser{}
			if err := DecodeInto([]byte(tt.payload), msg); err != nil {
				t.Fatalf("DecodeInto() returned an unexpected error: %v", err)
			}
			if reason := failureReason(t, msg.Validate()); reason != string(tt.want) {
				t.Fatalf("expected reason %q, got %q", tt.want, reason)
			}
			if tt.want == "" && msg.Target() != guid {
				t.Errorf("expected target %s, got %s", guid, msg.Target())
			}
		})
	}
}

func TestStartGame_Validate(t *testing.T) {
	tests := map[string]struct {
		time float64
		want StartGameFailReason
	}{
		"immediately":  {time: 0},
		"countdown":    {time: 5.5},
		"negative":     {time: -1, want: StartGameFailInvalidTime},
		"not a number": {time: math.NaN(), want: StartGameFailInvalidTime},
		"too far out":  {time: MaxTimerSeconds + 1, want: StartGameFailInvalidTime},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			msg := &StartGame{Time: tt.time}
			if reason := failureReason(t, msg.Validate()); reason != string(tt.want) {
				t.Errorf("expected reason %q, got %q", tt.want, reason)
			}
		})
	}

	if reason := failureReason(t, (&StopGame{Time: -3}).Validate()); reason != string(StopGameFailInvalidTime) {
		t.Errorf("expected StopGame InvalidTime, got %q", reason)
	}
	if reason := failureReason(t, (&RestartGame{Time: -3}).Validate()); reason != string(RestartGameFailInvalidTime) {
		t.Errorf("expected RestartGame InvalidTime, got %q", reason)
	}
}

func TestClientTick_Validate(t *testing.T) {
	entityType := "Ship"
	infinite := Vector3{X: float32(math.Inf(1))}
	position := Vector3{X: 1}

	tests := map[string]struct {
		delta EntityDelta
		want  ClientTickFailReason
	}{
		"position update":    {delta: EntityDelta{GUID: uuid.New(), Position: &position}},
		"missing guid":       {delta: EntityDelta{Position: &position}, want: ClientTickFailInvalidEntity},
		"server owned field": {delta: EntityDelta{GUID: uuid.New(), EntityType: &entityType}, want: ClientTickFailFieldIsNotClientOwned},
		"infinite position":  {delta: EntityDelta{GUID: uuid.New(), Position: &infinite}, want: ClientTickFailInvalidEntity},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			msg := &ClientTick{Entities: []EntityDelta{tt.delta}}
			if reason := failureReason(t, msg.Validate()); reason != string(tt.want) {
				t.Errorf("expected reason %q, got %q", tt.want, reason)
			}
		})
	}
}

func TestHitUser_Validate(t *testing.T) {
	valid := func() *HitUser {
		return &HitUser{Issuer: uuid.New(), Victim: uuid.New(), WeaponName: "laser", Damage: 10}
	}

	tests := map[string]struct {
		modify func(m *HitUser)
		want   HitUserFailReason
	}{
		"valid":           {modify: func(m *HitUser) {}},
		"no issuer":       {modify: func(m *HitUser) { m.Issuer = uuid.Nil }, want: HitUserFailInvalidIssuer},
		"no victim":       {modify: func(m *HitUser) { m.Victim = uuid.Nil }, want: HitUserFailInvalidVictim},
		"no weapon":       {modify: func(m *HitUser) { m.WeaponName = " " }, want: HitUserFailInvalidWeaponName},
		"negative damage": {modify: func(m *HitUser) { m.Damage = -1 }, want: HitUserFailInvalidDamage},
		"zero damage":     {modify: func(m *HitUser) { m.Damage = 0 }},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			msg := valid()
			tt.modify(msg)
			if reason := failureReason(t, msg.Validate()); reason != string(tt.want) {
				t.Errorf("expected reason %q, got %q", tt.want, reason)
			}
		})
	}
}
