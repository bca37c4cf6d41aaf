// Package transport defines the types exchanged between the conversation
// core and whatever chat transport delivers messages to users. Message
// delivery, button rendering and contact-sharing prompts live on the other
// side of this boundary.
package transport

// Button is one inline keyboard button. Data is the callback payload sent
// back when the button is pressed.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Contact is the structured contact payload a transport may attach to an
// event when the user shares their contact.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
}

// Event is a single incoming user action. Exactly one of Command, Callback
// or Text is expected to be set; Contact may accompany any of them.
type Event struct {
	UserID   int64    `json:"user_id"`
	UserName string   `json:"user_name"`
	Command  string   `json:"command,omitempty"`
	Callback string   `json:"callback,omitempty"`
	Text     string   `json:"text,omitempty"`
	Contact  *Contact `json:"contact,omitempty"`
}

// Reply is what the transport should render back to the user.
type Reply struct {
	Text           string     `json:"text"`
	Keyboard       [][]Button `json:"keyboard,omitempty"`
	RequestContact bool       `json:"request_contact,omitempty"`
}
