package mcp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docqa/internal/assistant"
)

const maxSearchResults = 20

// makeAskHandler creates the ask_documents tool handler. Fallback answers
// (no documents, low confidence) are results, not tool errors.
func makeAskHandler(a Assistant) func(
	context.Context, *mcp.CallToolRequest, AskDocumentsInput,
) (*mcp.CallToolResult, AskDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentsInput) (
		*mcp.CallToolResult, AskDocumentsOutput, error,
	) {
		resp, err := a.Ask(ctx, assistant.Request{
			Message:      input.Question,
			SessionID:    input.SessionID,
			CollectionID: input.CollectionID,
			K:            input.K,
		})
		if err != nil {
			return nil, AskDocumentsOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		return nil, AskDocumentsOutput{
			Answer:     resp.Answer,
			Sources:    resp.TopChunks,
			Outcome:    resp.Meta.Outcome,
			Collection: resp.Meta.Collection,
			MaxScore:   float64(resp.Meta.MaxScore),
		}, nil
	}
}

// makeSearchHandler creates the search_documents tool handler.
func makeSearchHandler(a Assistant) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = 5
		}
		maxResults = min(maxResults, maxSearchResults)

		res, err := a.Search(ctx, input.Query, input.CollectionID, maxResults)
		if err != nil {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(res.Hits))
		for _, h := range res.Hits {
			if float64(h.Score) < input.MinScore {
				continue // hits are sorted; the rest score lower
			}
			results = append(results, SearchResult{Page: h.Page, Text: h.Text, Score: float64(h.Score)})
		}

		out := SearchDocumentsOutput{Results: results, Collection: res.Collection}
		if len(results) == 0 {
			out.Message = "No matching passages found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeListHandler creates the list_collections tool handler.
func makeListHandler(a Assistant) func(
	context.Context, *mcp.CallToolRequest, ListCollectionsInput,
) (*mcp.CallToolResult, ListCollectionsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListCollectionsInput) (
		*mcp.CallToolResult, ListCollectionsOutput, error,
	) {
		st, err := a.Status(ctx)
		if err != nil {
			return nil, ListCollectionsOutput{}, fmt.Errorf("failed to list collections: %w", err)
		}

		out := ListCollectionsOutput{
			Collections: make([]CollectionInfo, 0, len(st.Collections)),
			Active:      st.Active,
		}
		for id, c := range st.Collections {
			out.Collections = append(out.Collections, CollectionInfo{
				ID:         id,
				Filename:   c.Filename,
				Pages:      c.Pages,
				Chunks:     c.Chunks,
				Generation: c.Generation,
				IngestedAt: c.IngestedAt,
				Active:     c.Active,
			})
		}
		slices.SortFunc(out.Collections, func(x, y CollectionInfo) int { return strings.Compare(x.ID, y.ID) })
		out.Count = len(out.Collections)
		return nil, out, nil
	}
}
