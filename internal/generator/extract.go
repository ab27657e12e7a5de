package generator

import "strings"

// ExtractPlaybook pulls the playbook body out of a raw model response.
// Precedence: a fenced block tagged yaml, then any fenced block, then the
// whole response. When multiple fenced blocks exist, the first one wins.
func ExtractPlaybook(response string) string {
	if body, ok := fencedBlock(response, "```yaml"); ok {
		return body
	}
	if body, ok := fencedBlock(response, "```"); ok {
		return body
	}
	return strings.TrimSpace(response)
}

func fencedBlock(response, opener string) (string, bool) {
	start := strings.Index(response, opener)
	if start < 0 {
		return "", false
	}
	start += len(opener)
	end := strings.Index(response[start:], "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(response[start : start+end]), true
}
