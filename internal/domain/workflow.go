package domain

import "strings"

// Workflow is the coarse processing mode selected per request.
type Workflow string

const (
	WorkflowDefault  Workflow = "Default"
	WorkflowAugment  Workflow = "Augment"
	WorkflowQuestion Workflow = "Question"
)

var workflows = []Workflow{WorkflowDefault, WorkflowAugment, WorkflowQuestion}

func ParseWorkflow(label string) (Workflow, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, w := range workflows {
		if strings.ToLower(string(w)) == l {
			return w, true
		}
	}
	return WorkflowDefault, false
}

func WorkflowLabels() []string {
	out := make([]string, 0, len(workflows))
	for _, w := range workflows {
		out = append(out, string(w))
	}
	return out
}
