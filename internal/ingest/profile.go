// Package ingest turns a profile document into vector chunks and keeps the
// vector index in sync with it.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/twinlab/digital-twin/internal/vector"
)

// Text accepts JSON strings, numbers and booleans, so "gpa": 3.8 and
// "gpa": "3.8" both load.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil || string(data) == "true" || string(data) == "false" {
		*t = Text(data)
		return nil
	}
	return fmt.Errorf("expected a string or number, got %s", data)
}

type Profile struct {
	Personal       *Personal       `json:"personal"`
	Experience     []Experience    `json:"experience"`
	Skills         *Skills         `json:"skills"`
	Education      *Education      `json:"education"`
	CareerGoals    *CareerGoals    `json:"career_goals"`
	SalaryLocation *SalaryLocation `json:"salary_location"`
	ContentChunks  []ContentChunk  `json:"content_chunks"`
}

type Personal struct {
	Name          Text `json:"name"`
	Summary       Text `json:"summary"`
	ElevatorPitch Text `json:"elevator_pitch"`
}

type Experience struct {
	Type             Text   `json:"type"`
	ProjectName      Text   `json:"project_name"`
	Company          Text   `json:"company"`
	Role             Text   `json:"role"`
	Duration         Text   `json:"duration"`
	Context          Text   `json:"context"`
	AchievementsSTAR []STAR `json:"achievements_star"`
}

// STAR is one Situation/Task/Action/Result achievement.
type STAR struct {
	Situation Text `json:"situation"`
	Task      Text `json:"task"`
	Action    Text `json:"action"`
	Result    Text `json:"result"`
}

type Skills struct {
	Technical *TechnicalSkills `json:"technical"`
}

type TechnicalSkills struct {
	ProgrammingLanguages []LanguageSkill `json:"programming_languages"`
}

type LanguageSkill struct {
	Language    Text   `json:"language"`
	Proficiency Text   `json:"proficiency"`
	Concepts    []Text `json:"concepts"`
}

type Education struct {
	Degree             Text   `json:"degree"`
	University         Text   `json:"university"`
	CurrentYear        Text   `json:"current_year"`
	GPA                Text   `json:"gpa"`
	ExpectedGraduation Text   `json:"expected_graduation"`
	RelevantCoursework []Text `json:"relevant_coursework"`
}

type CareerGoals struct {
	Immediate Text `json:"immediate"`
	ShortTerm Text `json:"short_term"`
	LongTerm  Text `json:"long_term"`
}

type SalaryLocation struct {
	SalaryExpectations  Text   `json:"salary_expectations"`
	LocationPreferences []Text `json:"location_preferences"`
	WorkAuthorization   Text   `json:"work_authorization"`
}

// ContentChunk is a pre-chunked entry; when a profile carries these they are
// used as-is instead of flattening the sections.
type ContentChunk struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Metadata struct {
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	} `json:"metadata"`
}

// LoadProfile reads and decodes a profile JSON file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid profile JSON in %s: %w", path, err)
	}
	return &p, nil
}

type chunker struct {
	chunks []vector.Chunk
}

// add appends a chunk with the next sequential ID. Empty content is skipped.
func (c *chunker) add(title, content, chunkType, category string, tags ...string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	c.chunks = append(c.chunks, vector.Chunk{
		ID:       fmt.Sprintf("chunk-%d", len(c.chunks)+1),
		Text:     title + ": " + content,
		Metadata: vector.NewMetadata(title, chunkType, content, category, tags),
	})
}

func joinTexts(items []Text, sep string) string {
	parts := make([]string, 0, len(items))
	for _, t := range items {
		if s := strings.TrimSpace(string(t)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func firstNonEmpty(values ...Text) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// Flatten converts a profile into chunks. Each chunk's text is
// "{title}: {content}" and its metadata carries title, type, content,
// category and tags. IDs are "chunk-<n>" in section order unless the profile
// provides content_chunks.
func Flatten(p *Profile) []vector.Chunk {
	if p == nil {
		return nil
	}
	if len(p.ContentChunks) > 0 {
		return flattenContentChunks(p.ContentChunks)
	}

	c := &chunker{}

	if p.Personal != nil {
		c.add("Personal Summary", string(p.Personal.Summary), "personal", "overview", "about", "introduction")
		c.add("Elevator Pitch", string(p.Personal.ElevatorPitch), "personal", "overview", "pitch", "introduction")
	}

	for _, exp := range p.Experience {
		expType := firstNonEmpty(exp.Type, "Experience")
		name := firstNonEmpty(exp.ProjectName, exp.Company, "Unknown")
		title := expType + ": " + name

		var details []string
		if exp.Role != "" {
			details = append(details, "Role: "+string(exp.Role))
		}
		if exp.Duration != "" {
			details = append(details, "Duration: "+string(exp.Duration))
		}
		if exp.Context != "" {
			details = append(details, "Context: "+string(exp.Context))
		}
		c.add(title, strings.Join(details, ". "), "experience", "work_history", "experience", strings.ToLower(expType))

		for i, star := range exp.AchievementsSTAR {
			starText := fmt.Sprintf("Situation: %s. Task: %s. Action: %s. Result: %s",
				star.Situation, star.Task, star.Action, star.Result)
			c.add(fmt.Sprintf("%s - Achievement %d", title, i+1), starText,
				"achievement", "accomplishments", "star", "achievement", strings.ToLower(expType))
		}
	}

	if p.Skills != nil && p.Skills.Technical != nil {
		for _, lang := range p.Skills.Technical.ProgrammingLanguages {
			if lang.Language == "" {
				continue
			}
			text := fmt.Sprintf("%s (%s): %s", lang.Language, lang.Proficiency, joinTexts(lang.Concepts, ", "))
			c.add("Programming: "+string(lang.Language), text, "skill", "technical",
				"programming", strings.ToLower(string(lang.Language)))
		}
	}

	if edu := p.Education; edu != nil {
		text := fmt.Sprintf("Studying %s at %s. Currently in %s. GPA: %s. Expected graduation: %s",
			edu.Degree, edu.University, edu.CurrentYear, edu.GPA, edu.ExpectedGraduation)
		c.add("Education Background", text, "education", "academic", "education", "university")

		if len(edu.RelevantCoursework) > 0 {
			c.add("Academic Coursework", "Relevant coursework: "+joinTexts(edu.RelevantCoursework, ", "),
				"education", "academic", "coursework", "education")
		}
	}

	if g := p.CareerGoals; g != nil {
		text := fmt.Sprintf("Immediate: %s. Short-term: %s. Long-term: %s", g.Immediate, g.ShortTerm, g.LongTerm)
		c.add("Career Goals", text, "goals", "career", "goals", "career")
	}

	if s := p.SalaryLocation; s != nil {
		text := fmt.Sprintf("Salary expectations: %s. Location preferences: %s. Work authorization: %s",
			s.SalaryExpectations, joinTexts(s.LocationPreferences, ", "), s.WorkAuthorization)
		c.add("Salary and Location Preferences", text, "preferences", "compensation", "salary", "location")
	}

	return c.chunks
}

func flattenContentChunks(in []ContentChunk) []vector.Chunk {
	chunks := make([]vector.Chunk, 0, len(in))
	for i, cc := range in {
		content := strings.TrimSpace(cc.Content)
		if content == "" {
			continue
		}
		id := strings.TrimSpace(cc.ID)
		if id == "" {
			id = fmt.Sprintf("chunk-%d", i+1)
		}
		chunks = append(chunks, vector.Chunk{
			ID:       id,
			Text:     cc.Title + ": " + content,
			Metadata: vector.NewMetadata(cc.Title, cc.Type, content, cc.Metadata.Category, cc.Metadata.Tags),
		})
	}
	return chunks
}
