package auth

import (
	"fmt"
	"slices"
	"time"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Authenticator verifies credentials of the configured accounts and issues
// access tokens. The account set is fixed at construction, so it is safe
// for concurrent use.
type Authenticator struct {
	secret     string
	ttlMinutes int

	users map[string]*User

	// dummyHash keeps login timing uniform for unknown usernames.
	dummyHash string
}

// NewAuthenticator creates an Authenticator.
//
// Parameters:
//   - secret: HS256 signing secret
//   - ttlMinutes: Access token lifetime (default 15)
//   - users: Configured accounts
//
// Returns:
//   - *Authenticator: Ready to log users in
//   - error: ErrNoSecret, or ErrInvalidUser for a bad username, role,
//     password hash or a duplicated username
func NewAuthenticator(secret string, ttlMinutes int, users []User) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	a := &Authenticator{
		secret:     secret,
		ttlMinutes: ttlMinutes,
		users:      make(map[string]*User, len(users)),
	}
	for i := range users {
		u := users[i]
		if !IsValidUsername(u.Username) {
			return nil, fmt.Errorf("%w: username %q", ErrInvalidUser, u.Username)
		}
		if !IsValidRole(u.Role) {
			return nil, fmt.Errorf("%w: user %q: unknown role %q", ErrInvalidUser, u.Username, u.Role)
		}
		if err := ValidateHash(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: user %q: password hash: %w", ErrInvalidUser, u.Username, err)
		}
		if _, dup := a.users[u.Username]; dup {
			return nil, fmt.Errorf("%w: duplicate username %q", ErrInvalidUser, u.Username)
		}
		a.users[u.Username] = &u
	}

	dummy, err := HashPassword("ism7-bridge-dummy")
	if err != nil {
		return nil, err
	}
	a.dummyHash = dummy
	return a, nil
}

// Login checks a username and password and returns a signed access token.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Login(username, password string) (*LoginResult, error) {
	user, ok := a.users[username]

	if !ok {
		VerifyPassword(password, a.dummyHash) //nolint:errcheck // timing equalisation only
		return nil, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	token, err := GenerateAccessToken(user, a.secret, a.ttlMinutes)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Duration(a.ttlMinutes) * time.Minute),
		User:        user,
	}, nil
}

// Verify validates an access token and returns its claims.
// Tokens of accounts removed from the configuration are rejected.
func (a *Authenticator) Verify(token string) (*CustomClaims, error) {
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return nil, err
	}

	user, ok := a.users[claims.Subject]
	if !ok {
		return nil, fmt.Errorf("%w: unknown user %q", ErrTokenInvalid, claims.Subject)
	}
	if user.Role != claims.Role {
		return nil, fmt.Errorf("%w: role changed", ErrTokenInvalid)
	}
	return claims, nil
}

// Authorize returns ErrForbidden unless claims grant perm.
func Authorize(claims *CustomClaims, perm Permission) error {
	if claims == nil || !HasPermission(claims.Role, perm) {
		return ErrForbidden
	}
	return nil
}

// Users returns the number of configured accounts.
func (a *Authenticator) Users() int {
	return len(a.users)
}

// WeakHashes returns, sorted, the usernames whose password hash should be
// regenerated with current settings.
func (a *Authenticator) WeakHashes() []string {
	var names []string
	for name, u := range a.users {
		if NeedsRehash(u.PasswordHash) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
