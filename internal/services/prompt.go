package services

import (
	"fmt"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildResumeMatchPrompt asks the model for the same JSON object the
// external scoring engine prints.
func (pb *PromptBuilder) BuildResumeMatchPrompt(resumeText, jobDescription string) string {
	return fmt.Sprintf(`You are an applicant tracking system scoring how well a resume matches a job description.

JOB DESCRIPTION:
%s

RESUME:
%s

Score the resume from 0 to 100. Break the evaluation down by resume section
(for example experience, skills, education, projects), each scored 0 to 100.
List the job requirements the resume does not cover, grouped by category
(for example technical, soft_skills, tools). Give concrete suggestions to
improve the resume for this job.

Return ONLY a JSON object in the following format:
{
  "score": <0-100>,
  "section_scores": {"<section>": <0-100>},
  "missing_keywords": {"<category>": ["<term>", "..."]},
  "suggestions": ["<suggestion>", "..."],
  "semantic_similarity": <0-100, overall meaning overlap>,
  "keyword_match": <0-100, share of job keywords present>
}

If the resume cannot be evaluated, return {"error": "<reason>"} instead.`,
		jobDescription, resumeText)
}
