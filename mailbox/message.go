package mailbox

// The JSON shapes below mirror the Graph-style message resource the web
// clients were built against, so existing frontends keep working unchanged.

// EmailAddress is the address and display name pair inside a Sender.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Sender wraps an EmailAddress one level deep, as the clients expect.
type Sender struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Body carries message content with its rendering type, "text" or "html".
type Body struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// Envelope is one listing entry: headers only, empty body. ID is the
// message UID within the listed mailbox, rendered as a decimal string.
type Envelope struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Sender           Sender `json:"sender"`
	From             Sender `json:"from"`
	Body             Body   `json:"body"`
	BodyPreview      string `json:"bodyPreview"`
}

// Detail is a fully fetched message. ContentHash is the BLAKE3 hash of the
// raw RFC 822 bytes, in hex; the HTTP layer uses it as the ETag.
type Detail struct {
	ID               string   `json:"id"`
	Subject          string   `json:"subject"`
	Sender           Sender   `json:"sender"`
	ToRecipients     []Sender `json:"toRecipients"`
	ReceivedDateTime string   `json:"receivedDateTime"`
	Body             Body     `json:"body"`
	BodyPreview      string   `json:"bodyPreview"`
	ContentHash      string   `json:"contentHash,omitempty"`
}

func senderOf(name, address string) Sender {
	return Sender{EmailAddress: EmailAddress{Address: address, Name: name}}
}
