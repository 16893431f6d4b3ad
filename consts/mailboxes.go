package consts

// DefaultMailbox is selected when an operation names no mailbox.
const DefaultMailbox = "INBOX"
