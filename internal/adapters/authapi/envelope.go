package authapi

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/dark4shadow/soft-animal-platform/internal/domain/auth"
)

// Envelope holds the JMESPath expressions that locate values in backend responses.
type Envelope struct {
	LoginUser     string
	LoginToken    string
	RegisterUser  string
	RegisterToken string
	ProfileUser   string
	ErrorMessage  string
}

// DefaultEnvelope matches {success, token, user}, {token, user} and {data: user} bodies.
func DefaultEnvelope() Envelope {
	return Envelope{
		LoginUser:     "user",
		LoginToken:    "token",
		RegisterUser:  "user",
		RegisterToken: "token",
		ProfileUser:   "data",
		ErrorMessage:  "message",
	}
}

func (e Envelope) withDefaults() Envelope {
	d := DefaultEnvelope()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return strings.TrimSpace(v)
	}
	return Envelope{
		LoginUser:     pick(e.LoginUser, d.LoginUser),
		LoginToken:    pick(e.LoginToken, d.LoginToken),
		RegisterUser:  pick(e.RegisterUser, d.RegisterUser),
		RegisterToken: pick(e.RegisterToken, d.RegisterToken),
		ProfileUser:   pick(e.ProfileUser, d.ProfileUser),
		ErrorMessage:  pick(e.ErrorMessage, d.ErrorMessage),
	}
}

// Validate compiles every expression.
func (e Envelope) Validate() error {
	for name, expr := range map[string]string{
		"login user":     e.LoginUser,
		"login token":    e.LoginToken,
		"register user":  e.RegisterUser,
		"register token": e.RegisterToken,
		"profile user":   e.ProfileUser,
		"error message":  e.ErrorMessage,
	} {
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("invalid %s expression %q: %w", name, expr, err)
		}
	}
	return nil
}

func searchString(expr string, data any) string {
	if data == nil {
		return ""
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// searchUser extracts and decodes a user record. ok is false when the value is
// missing or does not have the shape of a user.
func searchUser(expr string, data any) (domainauth.User, bool) {
	if data == nil {
		return domainauth.User{}, false
	}
	v, err := jmespath.Search(expr, data)
	if err != nil || v == nil {
		return domainauth.User{}, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return domainauth.User{}, false
	}
	var u domainauth.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return domainauth.User{}, false
	}
	// Some backends expose Mongo-style _id only.
	if u.ID == "" {
		if m, ok := v.(map[string]any); ok {
			if id, ok := m["_id"].(string); ok {
				u.ID = id
			}
		}
	}
	if !u.Validate() {
		return domainauth.User{}, false
	}
	u.Normalize()
	return u, true
}

// explicitFailure reports whether a 2xx body carries success=false.
func explicitFailure(data any) bool {
	m, ok := data.(map[string]any)
	if !ok {
		return false
	}
	s, ok := m["success"].(bool)
	return ok && !s
}
