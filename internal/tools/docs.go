package tools

import (
	"context"
	"fmt"
)

// Document is a stored text document. Content and Link are filled only by
// the operations that fetch them.
type Document struct {
	ID      string
	Title   string
	Link    string
	Content string
}

// DocumentStore creates, reads and searches text documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, title, content string) (Document, error)
	ReadDocument(ctx context.Context, id string) (Document, error)
	// FindDocuments returns documents whose title contains query.
	FindDocuments(ctx context.Context, query string) ([]Document, error)
}

type createDocArgs struct {
	Title   string `json:"title" jsonschema:"Title of the new document"`
	Content string `json:"content" jsonschema:"Text content of the new document"`
}

type docIDArgs struct {
	DocID string `json:"doc_id" jsonschema:"The documentId of the document"`
}

type docTitleArgs struct {
	Title string `json:"title" jsonschema:"Full or partial title to search for"`
}

// DocumentTools returns the create/read/search document tools.
func DocumentTools(store DocumentStore) ([]Descriptor, error) {
	create, err := NewTool("create_google_doc",
		"Create a new Google Doc with a given title and content",
		func(ctx context.Context, args createDocArgs) (string, error) {
			doc, err := store.CreateDocument(ctx, args.Title, args.Content)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created doc: %s\nLink: %s", args.Title, doc.Link), nil
		})
	if err != nil {
		return nil, err
	}

	readByID, err := NewTool("read_google_doc_by_id",
		"Read the text content of a Google Doc by its documentId",
		func(ctx context.Context, args docIDArgs) (string, error) {
			doc, err := store.ReadDocument(ctx, args.DocID)
			if err != nil {
				return "", err
			}
			return doc.Content, nil
		})
	if err != nil {
		return nil, err
	}

	readByTitle, err := NewTool("read_google_doc_by_title",
		"Read the text content of a Google Doc by searching for its title",
		func(ctx context.Context, args docTitleArgs) (string, error) {
			found, err := store.FindDocuments(ctx, args.Title)
			if err != nil {
				return "", err
			}
			if len(found) == 0 {
				return notFound(args.Title), nil
			}
			doc, err := store.ReadDocument(ctx, found[0].ID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Content of '%s':\n\n%s", found[0].Title, doc.Content), nil
		})
	if err != nil {
		return nil, err
	}

	search, err := NewTool("search_google_docs",
		"Search for Google Docs by title and get their IDs",
		func(ctx context.Context, args docTitleArgs) (string, error) {
			found, err := store.FindDocuments(ctx, args.Title)
			if err != nil {
				return "", err
			}
			if len(found) == 0 {
				return notFound(args.Title), nil
			}
			return fmt.Sprintf("Found document: %s (ID: %s)", found[0].Title, found[0].ID), nil
		})
	if err != nil {
		return nil, err
	}

	return []Descriptor{create, readByID, readByTitle, search}, nil
}

func notFound(title string) string {
	return fmt.Sprintf("No Google Docs found with title containing '%s'", title)
}
