package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	docs "google.golang.org/api/docs/v1"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const googleDocMimeType = "application/vnd.google-apps.document"

// GoogleWorkspace sends mail through Gmail and stores documents in Google
// Docs, using Drive for lookup by title.
type GoogleWorkspace struct {
	gmail *gmail.Service
	docs  *docs.Service
	drive *drive.Service
}

// NewGoogleWorkspace builds the Gmail, Docs and Drive clients. Callers
// normally pass option.WithHTTPClient with an authorized client.
func NewGoogleWorkspace(ctx context.Context, opts ...option.ClientOption) (*GoogleWorkspace, error) {
	gm, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail client: %w", err)
	}
	dc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs client: %w", err)
	}
	dr, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	return &GoogleWorkspace{gmail: gm, docs: dc, drive: dr}, nil
}

// GoogleHTTPClient returns an OAuth2 client from an installed-app client
// secrets file and a previously issued token file.
func GoogleHTTPClient(ctx context.Context, credentialsFile, tokenFile string) (*http.Client, error) {
	secrets, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials %s: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(secrets,
		gmail.GmailSendScope, docs.DocumentsScope, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading google token %s: %w", tokenFile, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parsing google token: %w", err)
	}
	return cfg.Client(ctx, &tok), nil
}

func (g *GoogleWorkspace) SendMail(ctx context.Context, msg Email) (string, error) {
	raw := buildMIMEMessage(msg)
	sent, err := g.gmail.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

var headerBreaks = strings.NewReplacer("\r", "", "\n", "")

func buildMIMEMessage(msg Email) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		v = headerBreaks.Replace(v)
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	header("To", strings.Join(msg.To, ", "))
	header("Cc", strings.Join(msg.Cc, ", "))
	header("Bcc", strings.Join(msg.Bcc, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}

func (g *GoogleWorkspace) CreateDocument(ctx context.Context, title, content string) (Document, error) {
	doc, err := g.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	if content != "" {
		_, err = g.docs.Documents.BatchUpdate(doc.DocumentId, &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     content,
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return Document{}, fmt.Errorf("insert content: %w", err)
		}
	}
	meta, err := g.drive.Files.Get(doc.DocumentId).Fields("webViewLink").Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("fetch link: %w", err)
	}
	return Document{ID: doc.DocumentId, Title: title, Link: meta.WebViewLink, Content: content}, nil
}

func (g *GoogleWorkspace) ReadDocument(ctx context.Context, id string) (Document, error) {
	doc, err := g.docs.Documents.Get(id).Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	var b strings.Builder
	if doc.Body != nil {
		for _, el := range doc.Body.Content {
			if el.Paragraph == nil {
				continue
			}
			for _, pe := range el.Paragraph.Elements {
				if pe.TextRun != nil {
					b.WriteString(pe.TextRun.Content)
				}
			}
		}
	}
	return Document{ID: doc.DocumentId, Title: doc.Title, Content: strings.TrimSpace(b.String())}, nil
}

func (g *GoogleWorkspace) FindDocuments(ctx context.Context, query string) ([]Document, error) {
	q := fmt.Sprintf("name contains '%s' and mimeType='%s'", escapeDriveQuery(query), googleDocMimeType)
	list, err := g.drive.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	out := make([]Document, 0, len(list.Files))
	for _, f := range list.Files {
		out = append(out, Document{ID: f.Id, Title: f.Name})
	}
	return out, nil
}

func escapeDriveQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// GoogleFamily returns the mail and document tool families. connect runs
// at most once, when the first of the two families is built, so a missing
// token only disables these tools and not the server.
func GoogleFamily(connect func() (*GoogleWorkspace, error)) []Family {
	workspace := sync.OnceValues(connect)
	return []Family{
		{Name: "mail", Build: func() ([]Descriptor, error) {
			ws, err := workspace()
			if err != nil {
				return nil, err
			}
			return MailTools(ws)
		}},
		{Name: "documents", Build: func() ([]Descriptor, error) {
			ws, err := workspace()
			if err != nil {
				return nil, err
			}
			return DocumentTools(ws)
		}},
	}
}
