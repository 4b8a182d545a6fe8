package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// PromptTemplate renders the system and user messages of one request pattern.
// Templates use text/template syntax; referencing a variable that the request
// does not supply is an error rather than an empty string.
type PromptTemplate struct {
	name   string
	system *template.Template
	user   *template.Template
}

// NewPromptTemplate parses the system and user templates. system may be empty.
func NewPromptTemplate(name, system, user string) (*PromptTemplate, error) {
	if strings.TrimSpace(user) == "" {
		return nil, fmt.Errorf("prompt template %q: user template is empty", name)
	}

	prompt := &PromptTemplate{name: name}
	var err error
	if system != "" {
		if prompt.system, err = parseTemplate(name+".system", system); err != nil {
			return nil, err
		}
	}
	if prompt.user, err = parseTemplate(name+".user", user); err != nil {
		return nil, err
	}
	return prompt, nil
}

// MustPromptTemplate is like NewPromptTemplate but panics on error. It is meant
// for templates compiled into the binary.
func MustPromptTemplate(name, system, user string) *PromptTemplate {
	prompt, err := NewPromptTemplate(name, system, user)
	if err != nil {
		panic(err)
	}
	return prompt
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"add":  func(left, right int) int { return left + right },
}

func parseTemplate(name, text string) (*template.Template, error) {
	parsed, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %q: %w", name, err)
	}
	return parsed, nil
}

// Name returns the template name.
func (prompt *PromptTemplate) Name() string {
	return prompt.name
}

// Render executes both templates with vars.
func (prompt *PromptTemplate) Render(vars map[string]any) (system string, user string, err error) {
	if prompt.system != nil {
		if system, err = execute(prompt.system, vars); err != nil {
			return "", "", err
		}
	}
	if user, err = execute(prompt.user, vars); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func execute(parsed *template.Template, vars map[string]any) (string, error) {
	var builder strings.Builder
	if err := parsed.Execute(&builder, vars); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", parsed.Name(), err)
	}
	return strings.TrimSpace(builder.String()), nil
}
