package offchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Proposal is a governance proposal on the off-chain voting hub.
type Proposal struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Author  string    `json:"author"`
	Start   int64     `json:"start"`
	End     int64     `json:"end"`
	State   string    `json:"state"`
	Type    string    `json:"type"`
	Choices []string  `json:"choices"`
	Scores  []float64 `json:"scores"`
}

// Winner returns the choice with the highest score, or "" before any vote.
func (p Proposal) Winner() string {
	best, idx := 0.0, -1
	for i, s := range p.Scores {
		if s > best && i < len(p.Choices) {
			best, idx = s, i
		}
	}
	if idx < 0 {
		return ""
	}
	return p.Choices[idx]
}

// Vote is one ballot. Choice is a 1-based index for single choice
// proposals and an array or object otherwise.
type Vote struct {
	ID       string          `json:"id"`
	Voter    string          `json:"voter"`
	Created  int64           `json:"created"`
	Choice   json.RawMessage `json:"choice"`
	VP       float64         `json:"vp"`
	Reason   string          `json:"reason"`
	Proposal struct {
		ID string `json:"id"`
	} `json:"proposal"`
}

const proposalsQuery = `query Proposals($space: String!, $since: Int!, $until: Int!) {
  proposals(first: 100, where: {space: $space, end_gte: $since, start_lte: $until}, orderBy: "created", orderDirection: desc) {
    id title author start end state type choices scores
  }
}`

const votesQuery = `query Votes($proposals: [String]!, $since: Int!, $until: Int!, $skip: Int!) {
  votes(first: 1000, skip: $skip, where: {proposal_in: $proposals, created_gt: $since, created_lte: $until}, orderBy: "created", orderDirection: asc) {
    id voter created choice vp reason proposal { id }
  }
}`

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// SnapshotClient queries a snapshot style GraphQL hub.
type SnapshotClient struct {
	client
	endpoint string
}

func NewSnapshotClient(endpoint string, opts Options) *SnapshotClient {
	return &SnapshotClient{
		client:   newClient("snapshot", opts),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

func (c *SnapshotClient) query(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint, graphqlRequest{Query: query, Variables: vars}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("snapshot query: %s", resp.Errors[0].Message)
	}
	return json.Unmarshal(resp.Data, out)
}

// Proposals returns proposals of space that were open at some point in
// [since, until].
func (c *SnapshotClient) Proposals(ctx context.Context, space string, since, until int64) ([]Proposal, error) {
	var data struct {
		Proposals []Proposal `json:"proposals"`
	}
	vars := map[string]interface{}{"space": space, "since": since, "until": until}
	if err := c.query(ctx, proposalsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("proposals: %w", err)
	}
	return data.Proposals, nil
}

// Votes returns votes cast on proposals in (since, until], oldest first.
func (c *SnapshotClient) Votes(ctx context.Context, proposals []string, since, until int64) ([]Vote, error) {
	var out []Vote
	for skip := 0; ; skip += 1000 {
		var data struct {
			Votes []Vote `json:"votes"`
		}
		vars := map[string]interface{}{"proposals": proposals, "since": since, "until": until, "skip": skip}
		if err := c.query(ctx, votesQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("votes: %w", err)
		}
		out = append(out, data.Votes...)
		if len(data.Votes) < 1000 {
			return out, nil
		}
	}
}
