package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/quick-resume/internal/llm"
	"github.com/jonathan/quick-resume/internal/prompts"
	"github.com/jonathan/quick-resume/internal/schemas"
	"github.com/jonathan/quick-resume/internal/types"
)

// LocalStrategy calls the model in-process and validates its structured output.
type LocalStrategy struct {
	client         llm.Client
	prompts        *prompts.Set
	maxSkillGroups int
	tier           llm.ModelTier
	now            func() time.Time
}

// NewLocalStrategy creates a strategy that sends prompt set instructions
// ahead of each request's source text.
func NewLocalStrategy(client llm.Client, set *prompts.Set, maxSkillGroups int) *LocalStrategy {
	if maxSkillGroups <= 0 {
		maxSkillGroups = types.DefaultMaxSkillGroups
	}
	return &LocalStrategy{
		client:         client,
		prompts:        set,
		maxSkillGroups: maxSkillGroups,
		tier:           llm.TierStandard,
		now:            time.Now,
	}
}

// Messages builds the ordered message list: system role, instructions, then the source text.
func (s *LocalStrategy) Messages(sourceText string) []llm.Message {
	var messages []llm.Message
	if s.prompts != nil {
		if s.prompts.System != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.prompts.System})
		}
		data := map[string]string{"MaxSkillGroups": strconv.Itoa(s.maxSkillGroups)}
		for _, instruction := range s.prompts.Messages(data) {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: instruction})
		}
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: sourceText})
}

// Generate runs one structured generation for req.
func (s *LocalStrategy) Generate(ctx context.Context, req *types.Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	start := s.now()
	raw, err := s.client.GenerateStructured(ctx, &llm.StructuredRequest{
		Messages: s.Messages(req.SourceText),
		Schema:   DocumentSchema(),
		Tier:     s.tier,
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		return nil, &TransportError{Op: "generate", Message: s.client.GetModel(s.tier), Cause: err}
	}

	doc, err := ParseDocument(raw, s.maxSkillGroups)
	if err != nil {
		return nil, err
	}

	return &Result{
		Document:  doc,
		Employer:  doc.EmployerName,
		RoleTitle: doc.RoleTitle,
		Elapsed:   elapsed,
	}, nil
}

// ParseDocument validates raw model output against the document schema and
// decodes it. Any mismatch is a *SchemaValidationError.
func ParseDocument(raw string, maxSkillGroups int) (*types.GeneratedDocument, error) {
	raw = llm.CleanJSONBlock(raw)

	if err := schemas.ValidateGeneratedDocument(raw); err != nil {
		schemaErr := &SchemaValidationError{Message: "schema check failed", Cause: err}
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			schemaErr.Fields = validationErr.Fields()
		}
		return nil, schemaErr
	}

	var doc types.GeneratedDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &SchemaValidationError{Message: "decode failed", Cause: err}
	}

	if err := doc.Validate(maxSkillGroups); err != nil {
		schemaErr := &SchemaValidationError{Message: "constraint check failed", Cause: err}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				schemaErr.Fields = append(schemaErr.Fields, fe.Namespace())
			}
		}
		return nil, schemaErr
	}

	return &doc, nil
}
