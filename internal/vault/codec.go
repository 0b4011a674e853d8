package vault

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vaultsync/vaultsync/internal/model"
)

const frontmatterDelim = "---"

// splitFrontmatter separates a document into its raw frontmatter block and
// body. Returns ErrNoFrontmatter when the document does not start with a
// delimiter line.
func splitFrontmatter(data []byte) (meta, body []byte, err error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelim+"\n") && text != frontmatterDelim {
		return nil, data, ErrNoFrontmatter
	}
	rest := text[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return nil, data, ErrNoFrontmatter
	}
	meta = []byte(rest[:end+1])
	tail := rest[end+1+len(frontmatterDelim):]
	tail = strings.TrimPrefix(tail, "\n")
	return meta, []byte(tail), nil
}

// kindProbe decodes just enough of the frontmatter to pick a record type.
type kindProbe struct {
	Kind model.Kind `yaml:"kind"`
}

// decodeRecord parses a frontmatter block into the typed record matching its
// declared kind. Unknown or missing kinds are an error; the caller decides
// whether that makes the document foreign or corrupt.
func decodeRecord(meta []byte) (model.Record, error) {
	var probe kindProbe
	if err := yaml.Unmarshal(meta, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	var rec model.Record
	switch probe.Kind {
	case model.KindProject:
		rec = &model.ProjectRecord{}
	case model.KindSection:
		rec = &model.SectionRecord{}
	case model.KindTask:
		rec = &model.TaskRecord{}
	default:
		return nil, fmt.Errorf("frontmatter declares unknown kind %q", probe.Kind)
	}

	if err := yaml.Unmarshal(meta, rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", probe.Kind, err)
	}
	return rec, nil
}

// encodeDocument renders a record plus body into document bytes.
func encodeDocument(rec model.Record, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish frontmatter: %w", err)
	}

	buf.WriteString(frontmatterDelim + "\n")
	if len(body) > 0 {
		buf.WriteString("\n")
		buf.Write(body)
	}
	return buf.Bytes(), nil
}
