package session

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transcript is a recorded session: the programs a student submitted, in
// order.
type Transcript struct {
	Programs []Entry
}

// Entry is one recorded submission.
type Entry struct {
	Name   string
	Source string
}

// ParseTranscript reads a YAML document of the form
//
//	programs:
//	  - "let x = 1;"
//	  - name: loop
//	    source: |
//	      while (x > 0) { x = x + 1; }
func ParseTranscript(data []byte) (*Transcript, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("transcript is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("transcript must be an object")
	}

	var programs *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "programs" {
			programs = root.Content[i+1]
			break
		}
	}
	if programs == nil {
		return nil, fmt.Errorf("transcript requires 'programs' key")
	}
	if programs.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("transcript: 'programs' must be a list")
	}

	t := &Transcript{}
	for i, item := range programs.Content {
		e, err := parseEntry(item)
		if err != nil {
			return nil, fmt.Errorf("transcript: program %d: %w", i+1, err)
		}
		if e.Name == "" {
			e.Name = fmt.Sprintf("program %d", i+1)
		}
		t.Programs = append(t.Programs, e)
	}
	return t, nil
}

func parseEntry(n *yaml.Node) (Entry, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return Entry{Source: n.Value}, nil
	case yaml.MappingNode:
		var e Entry
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return e, fmt.Errorf("'%s' must be a string", key.Value)
			}
			switch key.Value {
			case "name":
				e.Name = strings.TrimSpace(val.Value)
			case "source":
				e.Source = val.Value
			default:
				return e, fmt.Errorf("unknown key '%s'", key.Value)
			}
		}
		if strings.TrimSpace(e.Source) == "" {
			return e, fmt.Errorf("'source' is required")
		}
		return e, nil
	default:
		return Entry{}, fmt.Errorf("must be a string or an object")
	}
}

// LoadTranscript reads a transcript file.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return ParseTranscript(data)
}

// Replay submits every program of t in order and collects the results.
func (s *Session) Replay(ctx context.Context, t *Transcript) ([]*Result, error) {
	results := make([]*Result, 0, len(t.Programs))
	for _, e := range t.Programs {
		res, err := s.Submit(ctx, e.Source)
		if err != nil {
			return results, fmt.Errorf("%s: %w", e.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}
