package auth

// Credentials carries everything needed to mint access tokens for one
// account. ClientID is always explicit; callers resolve per-account
// overrides against the configured default before constructing this.
type Credentials struct {
	Email        string
	RefreshToken string
	ClientID     string
}
