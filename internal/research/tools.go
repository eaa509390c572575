package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/exa"
	"github.com/shpitdev/inbound-lead-agent/internal/fetch"
	"google.golang.org/genai"
)

// Tool is one capability the agent may invoke. Run returns a JSON-encodable
// value that is handed back to the model as the function response.
type Tool struct {
	Declaration *genai.FunctionDeclaration
	Run         func(ctx context.Context, args map[string]any) (any, error)
}

// Searcher is the search provider behind the search tool.
type Searcher interface {
	Search(ctx context.Context, req exa.SearchRequest) (exa.SearchResponse, error)
}

// PageFetcher is the provider behind the fetchUrl tool.
type PageFetcher interface {
	Page(ctx context.Context, url string) (fetch.Page, error)
}

var errBadArgs = errors.New("invalid tool arguments")

// SearchTool searches the web for an entity, filtered by result category.
func SearchTool(s Searcher, numResults int) Tool {
	categories := make([]string, len(exa.Categories))
	copy(categories, exa.Categories)
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "search",
			Description: "Search the web for information",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"keywords": {
						Type:        genai.TypeString,
						Description: `The entity to search for (e.g. "Apple"). Do not include keywords about the seller company.`,
					},
					"resultCategory": {
						Type:        genai.TypeString,
						Format:      "enum",
						Enum:        categories,
						Description: "The category of the result you are looking for",
					},
				},
				Required: []string{"keywords", "resultCategory"},
			},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			keywords, err := stringArg(args, "keywords", true)
			if err != nil {
				return nil, err
			}
			category, err := stringArg(args, "resultCategory", true)
			if err != nil {
				return nil, err
			}
			if !exa.ValidCategory(category) {
				return nil, fmt.Errorf("%w: unknown resultCategory %q", errBadArgs, category)
			}
			resp, err := s.Search(ctx, exa.SearchRequest{
				Query:      keywords,
				Category:   category,
				NumResults: numResults,
				Type:       "keyword",
			})
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(resp.Results))
			for _, r := range resp.Results {
				out = append(out, map[string]any{
					"title":   r.Title,
					"url":     r.URL,
					"summary": r.Summary,
				})
			}
			return map[string]any{"results": out}, nil
		},
	}
}

// FetchURLTool returns visible text from a public URL.
func FetchURLTool(f PageFetcher) Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "fetchUrl",
			Description: "Return visible text from a public URL.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"url": {Type: genai.TypeString, Description: "Absolute URL, including http:// or https://"},
				},
				Required: []string{"url"},
			},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			u, err := stringArg(args, "url", true)
			if err != nil {
				return nil, err
			}
			page, err := f.Page(ctx, u)
			if err != nil {
				return nil, err
			}
			return page, nil
		},
	}
}

// CRMSearchTool looks up existing opportunities by company name. Not backed by
// a CRM yet; it always reports no matches.
func CRMSearchTool() Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "crmSearch",
			Description: "Search the existing CRM for opportunities by company name or domain",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name": {Type: genai.TypeString, Description: `The name of the company to search for (e.g. "Acme")`},
				},
				Required: []string{"name"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (any, error) {
			if _, err := stringArg(args, "name", true); err != nil {
				return nil, err
			}
			return map[string]any{"opportunities": []any{}}, nil
		},
	}
}

// TechStackTool returns the tech stack of a domain. Stub: always empty.
func TechStackTool() Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "techStackAnalysis",
			Description: "Return tech stack analysis for a domain.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"domain": {Type: genai.TypeString, Description: `Domain, e.g. "acme.com"`},
				},
				Required: []string{"domain"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (any, error) {
			if _, err := stringArg(args, "domain", true); err != nil {
				return nil, err
			}
			return map[string]any{"technologies": []any{}}, nil
		},
	}
}

// KnowledgeBaseTool queries the internal knowledge base. Stub: returns a
// placeholder context string.
func KnowledgeBaseTool() Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name:        "queryKnowledgeBase",
			Description: "Query the knowledge base for the given query.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString},
				},
				Required: []string{"query"},
			},
		},
		Run: func(_ context.Context, args map[string]any) (any, error) {
			if _, err := stringArg(args, "query", true); err != nil {
				return nil, err
			}
			return map[string]any{"context": "Context from knowledge base for the given query"}, nil
		},
	}
}

// DefaultTools assembles the five research tools.
func DefaultTools(s Searcher, f PageFetcher, numResults int) []Tool {
	return []Tool{
		SearchTool(s, numResults),
		KnowledgeBaseTool(),
		FetchURLTool(f),
		CRMSearchTool(),
		TechStackTool(),
	}
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: %s is required", errBadArgs, key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", errBadArgs, key)
	}
	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", fmt.Errorf("%w: %s is required", errBadArgs, key)
	}
	return s, nil
}
