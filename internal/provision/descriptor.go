// Package provision hands the account descriptor XML to the client app
// exactly once, clearing it on first fetch or after a timeout.
package provision

import (
	"encoding/xml"
	"strings"

	"github.com/atinyakov/smsglue/internal/models"
)

// EmptyDescriptor is served when no descriptor is armed.
const EmptyDescriptor = "<account></account>"

const (
	fetchPostData = `{ "last_id": "%last_known_sms_id%", "last_sent_id": "%last_known_sent_sms_id%", "device": "%installid%" }`
	sendPostData  = `{ "to": "%sms_to%", "body": "%sms_body%" }`
)

func element(sb *strings.Builder, name, value string) {
	sb.WriteString("<" + name + ">")
	_ = xml.EscapeText(sb, []byte(value))
	sb.WriteString("</" + name + ">")
}

// rawElement writes value unescaped. The post-data templates are consumed
// literally by the client and must keep their quotes.
func rawElement(sb *strings.Builder, name, value string) {
	sb.WriteString("<" + name + ">" + value + "</" + name + ">")
}

// BuildDescriptor renders the account XML for the given hooks. Missing
// hooks omit their elements; the trailing settings are always present.
func BuildDescriptor(h models.Hooks) string {
	var sb strings.Builder
	sb.WriteString("<account>")

	if h.Report != "" {
		element(&sb, "pushTokenReporterUrl", h.Report)
	}
	if h.Fetch != "" {
		element(&sb, "genericSmsFetchUrl", h.Fetch)
		rawElement(&sb, "genericSmsFetchPostData", fetchPostData)
		rawElement(&sb, "genericSmsFetchContentType", "application/json")
	}
	if h.Send != "" {
		element(&sb, "genericSmsSendUrl", h.Send)
		rawElement(&sb, "genericSmsSendPostData", sendPostData)
		rawElement(&sb, "genericSmsContentType", "application/json")
	}
	rawElement(&sb, "allowMessage", "1")
	rawElement(&sb, "voiceMailNumber", "*97")

	sb.WriteString("</account>")
	return sb.String()
}
