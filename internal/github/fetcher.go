package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// ErrInvalidSource is returned for malformed owner/repo/path[@ref] strings.
var ErrInvalidSource = errors.New("invalid github source")

// maxDocumentBytes caps downloads; larger files are rejected.
const maxDocumentBytes = 100 << 20

// Source identifies one file in a repository.
type Source struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // branch, tag or commit; the default branch if empty
}

// ParseSource parses "owner/repo/path/to/file[@ref]".
func ParseSource(s string) (Source, error) {
	var src Source
	loc, ref, _ := strings.Cut(s, "@")
	src.Ref = ref

	parts := strings.SplitN(strings.Trim(loc, "/"), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Source{}, fmt.Errorf("%w: %q, want owner/repo/path[@ref]", ErrInvalidSource, s)
	}
	src.Owner, src.Repo, src.Path = parts[0], parts[1], parts[2]
	return src, nil
}

func (s Source) String() string {
	out := s.Owner + "/" + s.Repo + "/" + s.Path
	if s.Ref != "" {
		out += "@" + s.Ref
	}
	return out
}

// FetchedDoc is a document downloaded from GitHub
type FetchedDoc struct {
	Name    string // File name, used as the upload filename
	Path    string // Path within the repository
	Content []byte // Raw file bytes
	SHA     string // File's Git blob SHA
	URL     string // GitHub HTML URL
}

// Fetcher downloads single files from GitHub repositories
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new document fetcher
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads the file named by src. Files too large for the contents
// API are streamed through the download endpoint.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (*FetchedDoc, error) {
	opts := &github.RepositoryContentGetOptions{Ref: src.Ref}

	fileContent, dirContents, _, err := f.client.Repositories.GetContents(ctx, src.Owner, src.Repo, src.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", src, err)
	}
	if fileContent == nil || dirContents != nil {
		return nil, fmt.Errorf("%s is not a file", src)
	}

	var data []byte
	if fileContent.GetEncoding() == "base64" {
		content, err := fileContent.GetContent()
		if err != nil {
			return nil, fmt.Errorf("failed to decode content of %s: %w", src, err)
		}
		data = []byte(content)
	} else {
		rc, _, err := f.client.Repositories.DownloadContents(ctx, src.Owner, src.Repo, src.Path, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", src, err)
		}
		defer rc.Close()
		data, err = io.ReadAll(io.LimitReader(rc, maxDocumentBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", src, err)
		}
		if len(data) > maxDocumentBytes {
			return nil, fmt.Errorf("%s is larger than %d bytes", src, maxDocumentBytes)
		}
	}

	name := fileContent.GetName()
	if name == "" {
		name = path.Base(src.Path)
	}
	return &FetchedDoc{
		Name:    name,
		Path:    fileContent.GetPath(),
		Content: data,
		SHA:     fileContent.GetSHA(),
		URL:     fileContent.GetHTMLURL(),
	}, nil
}
