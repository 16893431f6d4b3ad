package auth

import "github.com/emersion/go-sasl"

// xoauth2Client implements the SASL XOAUTH2 mechanism, which go-sasl does
// not ship. The initial response is "user=<user>\x01auth=Bearer <token>\x01\x01".
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns a sasl.Client for the XOAUTH2 mechanism used by
// the outlook.com and gmail IMAP endpoints.
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	resp := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", resp, nil
}

// Next handles the error challenge the server may send before its tagged NO.
// The mechanism expects an empty client response to it.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return nil, nil
}
