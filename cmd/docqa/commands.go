package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docqa/internal/assistant"
	ghclient "github.com/mike-a-ellis/docqa/internal/github"
	"github.com/mike-a-ellis/docqa/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a PDF, Markdown or text document into a collection",
	Long: `Extracts, chunks, embeds and indexes one document, replacing the
collection's previous contents.

The document is read from a local file, or from GitHub with
--github owner/repo/path[@ref].

Environment variables:
  OPENAI_API_KEY   OpenAI API key for embeddings (required)
  GITHUB_TOKEN     GitHub token for higher rate limits (optional)
  TESSERACT_CMD    tesseract binary used for scanned pages (optional)
  UNIDOC_LICENSE_API_KEY  unipdf license, required for PDF text extraction`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the passages most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	ingestCmd.Flags().String("github", "", "fetch the document from GitHub: owner/repo/path[@ref]")
	ingestCmd.Flags().String("lang", "eng", "OCR language for scanned pages")
	ingestCmd.Flags().StringP("collection", "c", "default", "collection id")

	askCmd.Flags().StringP("collection", "c", "", "collection id (default: active collection)")
	askCmd.Flags().StringP("session", "s", "cli", "conversation session id")
	askCmd.Flags().IntP("k", "k", 0, "passages used as context (default RETRIEVAL_K)")

	searchCmd.Flags().StringP("collection", "c", "", "collection id (default: active collection)")
	searchCmd.Flags().IntP("k", "k", 5, "number of passages")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()
	ghSource, _ := cmd.Flags().GetString("github")
	lang, _ := cmd.Flags().GetString("lang")
	collectionID, _ := cmd.Flags().GetString("collection")

	if (len(args) == 1) == (ghSource != "") {
		return errors.New("give either a file or --github")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	req := ingest.Request{Lang: lang, CollectionID: collectionID}
	if ghSource != "" {
		src, err := ghclient.ParseSource(ghSource)
		if err != nil {
			return err
		}
		client, err := ghclient.NewClient(a.Config.GitHubToken)
		if err != nil {
			return fmt.Errorf("failed to create GitHub client: %w", err)
		}
		fmt.Printf("Fetching %s from GitHub...\n", src)
		doc, err := ghclient.NewFetcher(client).Fetch(ctx, src)
		if err != nil {
			return err
		}
		req.Data, req.Filename = doc.Content, doc.Name
	} else {
		req.Data, err = os.ReadFile(args[0])
		if err != nil {
			return err
		}
		req.Filename = filepath.Base(args[0])
	}

	fmt.Printf("Ingesting %s into collection %q...\n", req.Filename, collectionID)
	res, err := a.Pipeline.Ingest(ctx, req)
	printSteps(res)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Pages: %d\n", res.Pages)
	fmt.Printf("  Chunks: %d\n", res.NumChunks)
	fmt.Printf("  Generation: %s\n", res.Generation)
	fmt.Printf("  Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printSteps(res *ingest.Result) {
	if res == nil {
		return
	}
	for _, s := range res.Steps {
		line := fmt.Sprintf("  %-17s %8.2f ms", s.Step, s.Ms)
		if s.Pages != nil {
			line += fmt.Sprintf("  pages=%d", *s.Pages)
		}
		if s.Chunks != nil {
			line += fmt.Sprintf("  chunks=%d", *s.Chunks)
		}
		fmt.Println(line)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	collectionID, _ := cmd.Flags().GetString("collection")
	session, _ := cmd.Flags().GetString("session")
	k, _ := cmd.Flags().GetInt("k")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Assistant.Ask(cmd.Context(), assistant.Request{
		Message:      strings.Join(args, " "),
		SessionID:    session,
		CollectionID: collectionID,
		K:            k,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.TopChunks) > 0 {
		fmt.Println()
		fmt.Printf("Sources (%s, max score %.3f):\n", resp.Meta.Collection, resp.Meta.MaxScore)
		for _, c := range resp.TopChunks {
			fmt.Printf("  - %s\n", truncate(c, 100))
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	collectionID, _ := cmd.Flags().GetString("collection")
	k, _ := cmd.Flags().GetInt("k")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Assistant.Search(cmd.Context(), strings.Join(args, " "), collectionID, k)
	if err != nil {
		return err
	}
	for _, h := range res.Hits {
		fmt.Printf("%.3f  %s\n", h.Score, truncate(h.Text, 110))
	}
	if !res.Confident {
		fmt.Println("(below confidence threshold)")
	}
	return nil
}

func runCollections(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Registry.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No collections. Ingest a document first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tPAGES\tCHUNKS\tINGESTED")
	for _, c := range list {
		id := c.CollectionID
		if c.CollectionID == a.Registry.Active() {
			id += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", id, c.Filename, c.Pages, c.Chunks, c.IngestedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := a.MCPServer()
	if err != nil {
		return err
	}
	a.Logger.Info("starting docqa MCP server (stdio mode)")
	return server.Run(cmd.Context())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
