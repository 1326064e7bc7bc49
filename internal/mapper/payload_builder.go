package mapper

import (
	"strings"

	"github.com/Guizzs26/go-user-sync/internal/models"
)

// IdentifierField is always injected so every payload stays traceable to its
// origin record, even when the configured mappings omit it.
const IdentifierField = "moodle_id"

// DefaultMappings applies when no mapping spec is configured
const DefaultMappings = "firstname:first_name\nlastname:last_name\nemail:email\nidnumber:student_id\nusername:username"

type fieldMapping struct {
	Source   string
	External string
}

// PayloadBuilder translates directory records into external API payloads
// using a newline-delimited "source:external" mapping spec.
type PayloadBuilder struct {
	mappings []fieldMapping
}

func NewPayloadBuilder(spec string) *PayloadBuilder {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultMappings
	}

	var mappings []fieldMapping
	for _, line := range strings.Split(spec, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}

		source := strings.TrimSpace(parts[0])
		external := strings.TrimSpace(parts[1])
		if source == "" || external == "" {
			continue
		}

		mappings = append(mappings, fieldMapping{Source: source, External: external})
	}

	return &PayloadBuilder{mappings: mappings}
}

// Build copies each mapped field present on the record under its external
// name. Absent source fields are silently skipped, never emitted as null.
func (b *PayloadBuilder) Build(user *models.UserRecord) map[string]any {
	payload := make(map[string]any, len(b.mappings)+1)

	for _, m := range b.mappings {
		if v, ok := user.Field(m.Source); ok {
			payload[m.External] = v
		}
	}

	if _, ok := payload[IdentifierField]; !ok {
		payload[IdentifierField] = user.ID
	}

	return payload
}

// Mappings exposes the parsed mapping table, mainly for diagnostics
func (b *PayloadBuilder) Mappings() map[string]string {
	out := make(map[string]string, len(b.mappings))
	for _, m := range b.mappings {
		out[m.Source] = m.External
	}
	return out
}
