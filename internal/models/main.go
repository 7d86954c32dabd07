// Package models defines the core data structures shared by the glue
// components: account credentials, device bindings, hooks and messages.
package models

// AccountCredential holds the provider credentials embedded in a token.
type AccountCredential struct {
	// User is the provider API user (Signalwire project id, voip.ms login).
	User string `json:"user"`
	// Pass is the provider API secret.
	Pass string `json:"pass"`
	// DID is the account phone number, digits only.
	DID string `json:"did"`
	// Scope is the provider space name (Signalwire) or sub-account.
	Scope string `json:"scope"`
}

// DeviceBinding identifies one installed client for push delivery.
type DeviceBinding struct {
	DeviceToken string `json:"DeviceToken"`
	AppID       string `json:"AppId"`
}

// Hooks holds the webhook URLs handed to the client app and the provider.
type Hooks struct {
	// Provision is entered manually into the client to pull the descriptor.
	Provision string `json:"provision,omitempty"`
	// Report receives the push token and app id from the client.
	Report string `json:"report,omitempty"`
	// Notify is called by the provider whenever an SMS arrives.
	Notify string `json:"notify,omitempty"`
	// Fetch is polled by the client to list received messages.
	Fetch string `json:"fetch,omitempty"`
	// Send is posted to by the client to send a message.
	Send string `json:"send,omitempty"`
}

// Message is a received SMS in the shape the client app expects.
type Message struct {
	SMSID       string `json:"sms_id"`
	SendingDate string `json:"sending_date"`
	Sender      string `json:"sender"`
	Text        string `json:"sms_text"`
}

// OutboundMessage is the provider's acknowledgement of a sent SMS.
type OutboundMessage struct {
	SMSID string `json:"sms_id"`
}
