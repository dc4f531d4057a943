package protocol

// AuthenticationFailReason enumerates why an Authentication request failed.
type AuthenticationFailReason string

const (
	AuthenticationFailUnknown              AuthenticationFailReason = "Unknown"
	AuthenticationFailVersionIsNull        AuthenticationFailReason = "VersionIsNull"
	AuthenticationFailNotSupportedVersion  AuthenticationFailReason = "NotSupportedVersion"
	AuthenticationFailAlreadyAuthenticated AuthenticationFailReason = "AlreadyAuthenticated"
	AuthenticationFailTokenIsAlreadyInUse  AuthenticationFailReason = "TokenIsAlreadyInUse"
)

// Authentication is the first message a client sends after connecting. A
// token handed out by a previous AuthenticationAcknowledged rebinds the client
// to its previous identity.
type Authentication struct {
	Version string `json:"version"`
	Token   string `json:"token,omitempty"`
}

func (m *Authentication) Validate() error {
	if m.Version == "" {
		return Fail(&AuthenticationFailed{
			Message: "protocol version is missing",
			Reason:  AuthenticationFailVersionIsNull,
		})
	}
	return nil
}

// AuthenticationAcknowledged confirms authentication.
type AuthenticationAcknowledged struct {
	Token string   `json:"token"`
	User  UserData `json:"user"`
}

// AuthenticationFailed rejects an Authentication request. The peer stays
// unauthenticated and may retry.
type AuthenticationFailed struct {
	Message string                   `json:"message"`
	Reason  AuthenticationFailReason `json:"reason"`
}

func (m *AuthenticationFailed) FailureReason() string { return string(m.Reason) }
