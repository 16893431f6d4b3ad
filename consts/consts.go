package consts

import "time"

// Microsoft personal-account (consumers tenant) OAuth2 endpoints.
const (
	TokenEndpoint     = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"
	AuthorizeEndpoint = "https://login.microsoftonline.com/consumers/oauth2/v2.0/authorize"

	// DefaultClientID is the public client registration used when an account
	// carries no client ID of its own.
	DefaultClientID = "dbc8e03a-b00c-46bd-ae65-b683e7707cb0"

	// OAuthScope requests IMAP access plus a refresh token.
	OAuthScope = "https://outlook.office.com/IMAP.AccessAsUser.All offline_access"
)

const (
	IMAPServer  = "outlook.live.com"
	IMAPPort    = "993"
	IMAPAddress = IMAPServer + ":" + IMAPPort
)

// Token lifetime handling. The provider's expires_in is not parsed; a fixed
// one-hour lifetime is assumed and refreshed five minutes early.
const (
	TokenLifetime     = time.Hour
	TokenExpiryBuffer = 5 * time.Minute
)

// Connection establishment limits per logical operation.
const (
	ConnectAttempts       = 3
	ConnectAttemptTimeout = 10 * time.Second
	ConnectRetryPause     = time.Second
)

// Display fallbacks used when message headers are absent or undecodable.
const (
	NoSubjectFallback     = "(No Subject)"
	NoDateFallback        = "(No Date)"
	UnknownSenderFallback = "(Unknown Sender)"
	UnknownRecipFallback  = "(Unknown Recipient)"
	UnknownNameFallback   = "(Unknown)"
	HeaderDecodeError     = "[Header Decode Error]"

	NoReadableContent = "[No readable message content]"
	NoReadableText    = "[No readable text content]"
	BodyDecodeError   = "[Failed to decode email body]"
)

// RawDateFallbackLen bounds the prefix of an unparsable Date header kept as
// the display value.
const RawDateFallbackLen = 25

// DateDisplayFormat is the normalized timestamp format returned to clients.
const DateDisplayFormat = "2006-01-02 15:04:05"
