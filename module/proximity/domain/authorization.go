package domain

import "fmt"

type AuthorizationState int

const (
	AuthNotDetermined AuthorizationState = iota
	AuthWhenInUse
	AuthAlways
	AuthDenied
	AuthRestricted
)

var authorizationNames = map[AuthorizationState]string{
	AuthNotDetermined: "not_determined",
	AuthWhenInUse:     "when_in_use",
	AuthAlways:        "always",
	AuthDenied:        "denied",
	AuthRestricted:    "restricted",
}

func (s AuthorizationState) String() string {
	if n, ok := authorizationNames[s]; ok {
		return n
	}
	return fmt.Sprintf("authorization(%d)", int(s))
}

func ParseAuthorizationState(s string) (AuthorizationState, error) {
	for state, name := range authorizationNames {
		if name == s {
			return state, nil
		}
	}
	return AuthNotDetermined, fmt.Errorf("unknown authorization state %q", s)
}

// Authorization is the device's last reported permission snapshot.
type Authorization struct {
	Location      AuthorizationState `json:"location"`
	Notifications bool               `json:"notifications"`
}
