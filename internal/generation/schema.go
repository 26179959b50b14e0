package generation

import "github.com/jonathan/quick-resume/internal/llm"

// DocumentSchema is the response schema the model is constrained to. It
// mirrors the JSON Schema the output is validated against afterwards.
func DocumentSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"companyName":    {Type: llm.TypeString, Description: "Hiring company name as written in the posting"},
			"roleTitle":      {Type: llm.TypeString, Description: "Role title exactly as in the posting"},
			"developerTitle": {Type: llm.TypeString, Description: "Candidate title shown on the resume"},
			"summary":        {Type: llm.TypeString},
			"skills": {
				Type: llm.TypeArray,
				Items: &llm.Schema{
					Type: llm.TypeObject,
					Properties: map[string]*llm.Schema{
						"group":    {Type: llm.TypeString},
						"keywords": llm.StringArray(""),
					},
					Required: []string{"group", "keywords"},
				},
			},
			"experience_first":  llm.StringArray("Bullets for the most recent position"),
			"experience_second": llm.StringArray("Bullets for the previous position"),
			"experience_third":  llm.StringArray("Bullets for the position before that"),
		},
		Required: []string{
			"companyName", "roleTitle", "developerTitle", "summary", "skills",
			"experience_first", "experience_second", "experience_third",
		},
	}
}
