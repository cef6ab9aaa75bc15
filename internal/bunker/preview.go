package bunker

import "encoding/json"

// AgentDefPreview is what a bunker approval prompt shows the user for
// a kind-4199 sign_event request (spec 4.6 preview contract).
type AgentDefPreview struct {
	Title        string
	Role         string
	Description  string
	Category     string
	Version      string
	DTag         string
	Instructions []string
	UseCriteria  []string
	Tools        []string
	MCPServers   []string
	FileEventIDs []string
	MarkdownBody string
}

// eventEnvelope is the subset of a kind-4199 event's JSON the preview
// needs, read straight off req.EventJSON.
type eventEnvelope struct {
	Content string     `json:"content"`
	Tags    [][]string `json:"tags"`
}

// PreviewAgentDefinition builds the approval-prompt preview for a
// pending kind-4199 request, preferring the full EventJSON payload and
// falling back to the legacy (EventContent, EventTagsJSON) pair for
// backward compatibility (spec 4.6).
func PreviewAgentDefinition(req *Request) AgentDefPreview {
	content, tags := extractContentAndTags(req)
	return buildPreview(content, tags)
}

func extractContentAndTags(req *Request) (string, [][]string) {
	if req.EventJSON != "" {
		var env eventEnvelope
		if err := json.Unmarshal([]byte(req.EventJSON), &env); err == nil {
			return env.Content, env.Tags
		}
	}

	var tags [][]string
	if req.EventTagsJSON != "" {
		_ = json.Unmarshal([]byte(req.EventTagsJSON), &tags)
	}
	return req.EventContent, tags
}

func buildPreview(content string, tags [][]string) AgentDefPreview {
	p := AgentDefPreview{MarkdownBody: content}
	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "d":
			p.DTag = tag[1]
		case "title":
			p.Title = tag[1]
		case "role":
			p.Role = tag[1]
		case "description":
			p.Description = tag[1]
		case "category":
			p.Category = tag[1]
		case "ver":
			p.Version = tag[1]
		case "instructions":
			p.Instructions = append(p.Instructions, tag[1])
		case "use-criteria":
			p.UseCriteria = append(p.UseCriteria, tag[1])
		case "tool":
			p.Tools = append(p.Tools, tag[1])
		case "mcp-server":
			p.MCPServers = append(p.MCPServers, tag[1])
		case "e":
			p.FileEventIDs = append(p.FileEventIDs, tag[1])
		}
	}
	return p
}
