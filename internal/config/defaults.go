package config

// DefaultGameCadence is the minimum number of user turns between gamified
// replies within a session. The cadence is deliberately a named constant:
// the study protocol pins it and the test suite asserts it.
const DefaultGameCadence = 3

// DefaultMetaClassifierTemplate returns the built-in thread classification prompt
func DefaultMetaClassifierTemplate() string {
	return `You are classifying one turn of a design tutoring conversation.

Previous assistant message:
"""
{{.LastAssistant}}
"""

New student message:
"""
{{.UserMessage}}
"""

Classify the student message as exactly one of:
- EXAMPLE_REQUEST: the student asks for (more) precedents or worked examples
- ANSWER_CONTINUATION: the student answers or elaborates the assistant's last point
- TOPIC_CONTINUATION: the student continues the current design topic without answering
- SOCRATIC_CONTINUATION: the student responds to a question the assistant asked
- NEW_TOPIC: the student opens an unrelated design topic

Respond with strict JSON only:
{"label": "<one of the five labels>", "confidence": <0.0-1.0>}`
}

// DefaultGradeRubricTemplate returns the built-in rubric grading prompt
func DefaultGradeRubricTemplate() string {
	return `You are grading a student architect's answer against a rubric.

Question ({{.Phase}} phase, step "{{.Step}}"):
"""
{{.Question}}
"""

Student answer:
"""
{{.Answer}}
"""

Score each dimension from 0 to 5. Dimensions: {{.Dimensions}}.

Respond with strict JSON only, one key per dimension:
{"<dimension>": {"score": <0-5>, "reasoning": "<one sentence>"}}`
}

// DefaultSocraticTemplate returns the built-in Socratic question prompt
func DefaultSocraticTemplate() string {
	return `You are a Socratic architecture design mentor. Strategy: {{.Strategy}}.

Project context: {{.ProjectContext}}
Current phase: {{.Phase}}
Student's latest message:
"""
{{.UserMessage}}
"""
{{.ExtraGuidance}}

Ask exactly one question that pushes the student's own thinking forward.
Do not answer for them. Do not repeat a question already asked:
{{.AskedQuestions}}

Respond with the question text only.`
}

// DefaultDirectAnswerTemplate returns the generic-arm direct answer prompt
func DefaultDirectAnswerTemplate() string {
	return `You are a helpful AI assistant answering an architecture student.

Conversation context:
{{.Context}}

Student message:
"""
{{.UserMessage}}
"""

Give a clear, direct, informative answer. Do not append questions.`
}

// DefaultAnalysisTemplate returns the structural analysis prompt
func DefaultAnalysisTemplate() string {
	return `Analyze this architecture student's message for a design mentor.

Message:
"""
{{.UserMessage}}
"""

Respond with strict JSON only:
{
  "building_type": "<inferred building type or 'unknown'>",
  "program_requirements": ["<requirement>", ...],
  "cognitive_challenges": ["<challenge>", ...],
  "learning_opportunities": ["<opportunity>", ...],
  "missing_considerations": ["<consideration>", ...],
  "phase_hypothesis": "<ideation|visualization|materialization>"
}`
}
