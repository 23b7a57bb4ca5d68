// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package semsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/search"
)

// mcpIdentity is the admission identity shared by all MCP callers. The
// transport carries no caller address, so the tools draw from one
// quota bucket.
const mcpIdentity = "mcp:local"

// RegisterMCP registers the semsearch tools on an MCP server. The
// tools reuse the engine's admission, caching and failover semantics.
func (e *Engine) RegisterMCP(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "semsearch_query",
		Description: "Semantic search over the skill and technology catalog. Returns ranked matches with similarity scores.",
	}, e.mcpQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "semsearch_index_status",
		Description: "Report indexing progress. Covers one kind (skill or technology) or all kinds when none is given.",
	}, e.mcpIndexStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "semsearch_index_resume",
		Description: "Start or resume one indexing batch for a kind (skill or technology).",
	}, e.mcpIndexResume)
}

type mcpQueryArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type mcpQueryResult struct {
	Matches []mcpMatch `json:"matches"`
	Cached  bool       `json:"cached"`
}

type mcpMatch struct {
	RecordID int64   `json:"record_id"`
	Kind     string  `json:"kind"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Summary  string  `json:"summary,omitempty"`
	Score    float32 `json:"score"`
	Source   string  `json:"source"`
}

func (e *Engine) mcpQuery(ctx context.Context, req *mcp.CallToolRequest, args mcpQueryArgs) (*mcp.CallToolResult, mcpQueryResult, error) {
	resp, err := e.Search(ctx, search.Request{
		Query:    args.Query,
		TopK:     args.TopK,
		Identity: mcpIdentity,
	})
	if err != nil {
		var denied *core.AdmissionError
		switch {
		case errors.As(err, &denied):
			return nil, mcpQueryResult{}, fmt.Errorf("rate limited: retry after %d seconds", denied.RetryAfterSeconds)
		case errors.Is(err, core.ErrEmptyQuery):
			return nil, mcpQueryResult{}, err
		default:
			e.logger.Error("mcp query failed", "err", err)
			return nil, mcpQueryResult{}, errors.New("search failed")
		}
	}

	result := mcpQueryResult{
		Matches: make([]mcpMatch, 0, len(resp.Matches)),
		Cached:  resp.Cached,
	}
	for _, m := range resp.Matches {
		result.Matches = append(result.Matches, mcpMatch{
			RecordID: int64(m.RecordId),
			Kind:     string(m.Kind),
			Name:     m.Name,
			Category: m.Category,
			Summary:  m.Summary,
			Score:    m.Score,
			Source:   m.Source,
		})
	}
	return nil, result, nil
}

type mcpIndexStatusArgs struct {
	Kind string `json:"kind,omitempty"`
}

type mcpIndexStatusResult struct {
	Checkpoints []mcpCheckpoint `json:"checkpoints"`
}

type mcpCheckpoint struct {
	Kind       string `json:"kind"`
	Version    uint64 `json:"version"`
	NextOffset int64  `json:"next_offset"`
	Processed  int64  `json:"processed"`
	Total      int64  `json:"total"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func checkpointPayload(cp core.Checkpoint) mcpCheckpoint {
	out := mcpCheckpoint{
		Kind:       string(cp.Kind),
		Version:    cp.Version,
		NextOffset: cp.NextOffset,
		Processed:  cp.Processed,
		Total:      cp.Total,
		Status:     cp.Status.String(),
	}
	if !cp.UpdatedAt.IsZero() {
		out.UpdatedAt = cp.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (e *Engine) mcpIndexStatus(ctx context.Context, req *mcp.CallToolRequest, args mcpIndexStatusArgs) (*mcp.CallToolResult, mcpIndexStatusResult, error) {
	kinds := core.AllKinds()
	if args.Kind != "" {
		kind, err := core.ParseKind(args.Kind)
		if err != nil {
			return nil, mcpIndexStatusResult{}, err
		}
		kinds = []core.Kind{kind}
	}

	result := mcpIndexStatusResult{Checkpoints: make([]mcpCheckpoint, 0, len(kinds))}
	for _, kind := range kinds {
		cp, err := e.IndexProgress(ctx, kind)
		if err != nil {
			e.logger.Error("mcp index status failed", "kind", kind, "err", err)
			return nil, mcpIndexStatusResult{}, errors.New("index status unavailable")
		}
		if cp == nil {
			continue
		}
		result.Checkpoints = append(result.Checkpoints, checkpointPayload(*cp))
	}
	return nil, result, nil
}

type mcpIndexResumeArgs struct {
	Kind      string `json:"kind"`
	BatchSize int    `json:"batch_size,omitempty"`
}

type mcpIndexResumeResult struct {
	Triggered  bool           `json:"triggered"`
	Locked     bool           `json:"locked"`
	Checkpoint *mcpCheckpoint `json:"checkpoint,omitempty"`
}

func (e *Engine) mcpIndexResume(ctx context.Context, req *mcp.CallToolRequest, args mcpIndexResumeArgs) (*mcp.CallToolResult, mcpIndexResumeResult, error) {
	kind, err := core.ParseKind(args.Kind)
	if err != nil {
		return nil, mcpIndexResumeResult{}, err
	}

	res, err := e.TriggerIndexResume(ctx, kind, args.BatchSize)
	if err != nil {
		e.logger.Error("mcp index resume failed", "kind", kind, "err", err)
		return nil, mcpIndexResumeResult{}, errors.New("index resume failed")
	}

	result := mcpIndexResumeResult{
		Triggered: res.Triggered,
		Locked:    res.Locked,
	}
	if res.Triggered {
		cp := checkpointPayload(res.Checkpoint)
		result.Checkpoint = &cp
	}
	return nil, result, nil
}
