package tools

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

// Email is an outgoing plain-text message.
type Email struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
}

// MailSender delivers email and returns the provider's message ID.
type MailSender interface {
	SendMail(ctx context.Context, msg Email) (string, error)
}

type sendMailArgs struct {
	Message string   `json:"message" jsonschema:"The message body to send"`
	To      []string `json:"to" jsonschema:"The list of recipients"`
	Subject string   `json:"subject" jsonschema:"The subject of the message"`
	Cc      []string `json:"cc,omitempty" jsonschema:"The list of CC recipients"`
	Bcc     []string `json:"bcc,omitempty" jsonschema:"The list of BCC recipients"`
}

// MailTools returns the send_gmail_message tool.
func MailTools(sender MailSender) ([]Descriptor, error) {
	send, err := NewTool("send_gmail_message",
		"Use this tool to send email messages. The input is the message and recipients.",
		func(ctx context.Context, args sendMailArgs) (string, error) {
			if len(args.To) == 0 {
				return "", fmt.Errorf("%w: at least one recipient is required", ErrInvalidArguments)
			}
			msg := Email{Subject: args.Subject, Body: args.Message}
			var err error
			if msg.To, err = parseRecipients("to", args.To); err != nil {
				return "", err
			}
			if msg.Cc, err = parseRecipients("cc", args.Cc); err != nil {
				return "", err
			}
			if msg.Bcc, err = parseRecipients("bcc", args.Bcc); err != nil {
				return "", err
			}
			id, err := sender.SendMail(ctx, msg)
			if err != nil {
				return "", fmt.Errorf("send message to %s: %w", strings.Join(msg.To, ", "), err)
			}
			return fmt.Sprintf("Message sent. Message Id: %s", id), nil
		})
	if err != nil {
		return nil, err
	}
	return []Descriptor{send}, nil
}

// parseRecipients checks each entry is a single RFC 5322 address and
// returns it in canonical form: the bare address, or "Name" <address>.
func parseRecipients(field string, list []string) ([]string, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(list))
	for _, raw := range list {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s recipient %q: %v", ErrInvalidArguments, field, raw, err)
		}
		if addr.Name == "" {
			out = append(out, addr.Address)
		} else {
			out = append(out, addr.String())
		}
	}
	return out, nil
}
