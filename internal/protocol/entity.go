package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Vector3 is a position, velocity or force in world space.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// IsFinite reports whether every component is a real number.
func (v Vector3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Quaternion is a rotation in world space.
type Quaternion struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// IdentityRotation is the rotation entities spawn with.
var IdentityRotation = Quaternion{W: 1}

// IsFinite reports whether every component is a real number.
func (q Quaternion) IsFinite() bool {
	return isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z) && isFinite(q.W)
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// Color is a 24 bit RGB color, serialized as a 6 digit hex string.
type Color uint32

// White is the default lobby and game color.
const White Color = 0xFFFFFF

func (c Color) String() string {
	return fmt.Sprintf("%06X", uint32(c)&0xFFFFFF)
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("color must be a hex string: %w", err)
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor parses "RRGGBB" or "#RRGGBB".
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("color %q must have 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q is not hexadecimal", s)
	}
	return Color(v), nil
}

// EntityDelta carries the replicated state of one entity. Every field except
// the guid is optional: absent fields did not change since the state last
// sent to the receiver.
type EntityDelta struct {
	GUID              uuid.UUID   `json:"guid"`
	EntityType        *string     `json:"entityType,omitempty"`
	Color             *Color      `json:"color,omitempty"`
	IsSpectating      *bool       `json:"isSpectating,omitempty"`
	Position          *Vector3    `json:"position,omitempty"`
	Rotation          *Quaternion `json:"rotation,omitempty"`
	Velocity          *Vector3    `json:"velocity,omitempty"`
	AngularVelocity   *Vector3    `json:"angularVelocity,omitempty"`
	Actions           *[]string   `json:"actions,omitempty"`
	IsResyncRequested *bool       `json:"isResyncRequested,omitempty"`
}

// IsEmpty reports whether the delta carries no field besides the guid.
func (d *EntityDelta) IsEmpty() bool {
	return d.EntityType == nil &&
		d.Color == nil &&
		d.IsSpectating == nil &&
		d.Position == nil &&
		d.Rotation == nil &&
		d.Velocity == nil &&
		d.AngularVelocity == nil &&
		d.Actions == nil &&
		d.IsResyncRequested == nil
}

// HasServerAuthoritativeFields reports whether the delta touches fields only
// the server may change.
func (d *EntityDelta) HasServerAuthoritativeFields() bool {
	return d.EntityType != nil || d.Color != nil || d.IsSpectating != nil
}

// IsFinite reports whether every populated vector field is a real number.
func (d *EntityDelta) IsFinite() bool {
	for _, v := range []*Vector3{d.Position, d.Velocity, d.AngularVelocity} {
		if v != nil && !v.IsFinite() {
			return false
		}
	}
	return d.Rotation == nil || d.Rotation.IsFinite()
}

// UserData is the public view of an authenticated user.
type UserData struct {
	GUID       uuid.UUID `json:"guid"`
	Username   string    `json:"username"`
	LobbyColor Color     `json:"lobbyColor"`
}
