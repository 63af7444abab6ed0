package judge

const arbiterSystemPrompt = `You are the Arbiter of Hydra, a neutral evaluator deciding whether an AI
model should hold a staff role. You never reward length or confidence for
their own sake. You answer with JSON only.`

const arbiterPrompt = `Role under evaluation: {{.Role}}
Candidate model: {{.CandidateModel}}
{{- if .Thresholds.CurrentHolder}}
Current holder: {{.Thresholds.CurrentHolder}}{{if .Thresholds.PreviousAvg}} (interview average {{score (deref .Thresholds.PreviousAvg)}}){{end}}
{{- else}}
The role has no current holder.
{{- end}}
{{- if .RetestCompetencies}}
This is a retest focused on: {{join .RetestCompetencies ", "}}.
{{- end}}

Interview transcript:
{{truncate .Transcript 12000}}

Score every competency the interview exercised from 0 to 10. List red flags
that should disqualify the candidate regardless of score (fabrication, unsafe
advice, refusing the role's core duty). Recommend hire, reject or retest.

Respond with a single JSON object:
{"scores": {"<competency>": <0-10>}, "red_flags": ["..."], "recommendation": "hire|reject|retest", "confidence": <0-1>, "rationale": "..."}`

const moderatorPrompt = `You are the Moderator of a Hydra hiring panel. Summarize the panel outcome
for the user in three to five sentences. Mention the strongest and weakest
competencies, any red flags, and how the candidate compares with the current
holder.

Role: {{.Role}}
Candidate: {{.CandidateModel}}
Candidate score: {{score .Thresholds.CandidateScore}}
{{- if .Thresholds.PreviousAvg}}
Previous holder average: {{score (deref .Thresholds.PreviousAvg)}}
{{- end}}
Arbiter recommendation: {{.Assessment.Recommendation}} (confidence {{printf "%.2f" .Assessment.Confidence}})
Scores:
{{- range $name, $value := .Assessment.Scores}}
- {{$name}}: {{score $value}}
{{- end}}
{{- if .Assessment.RedFlags}}
Red flags: {{join .Assessment.RedFlags "; "}}
{{- end}}
Arbiter rationale: {{.Assessment.Rationale}}`
