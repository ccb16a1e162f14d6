package client

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// AskProfile mirrors the guidance API's profile contract.
type AskProfile struct {
	Grade        int                `json:"grade"`
	Curriculum   string             `json:"curriculum,omitempty"`
	Subjects     []string           `json:"subjects"`
	Marks        map[string]float64 `json:"marks,omitempty"`
	Interests    []string           `json:"interests,omitempty"`
	Weaknesses   []string           `json:"weaknesses,omitempty"`
	Financial    string             `json:"financial_constraint,omitempty"`
	Location     string             `json:"location,omitempty"`
	TimeFlexible bool               `json:"time_flexible,omitempty"`
}

// AskOptions mirrors the guidance API's options contract.
type AskOptions struct {
	SkipLLMVerification bool `json:"skip_llm_verification,omitempty"`
	StrictMode          bool `json:"strict_mode,omitempty"`
}

// AskRequest represents the guidance API request.
type AskRequest struct {
	Query   string     `json:"query"`
	Profile AskProfile `json:"profile"`
	Options AskOptions `json:"options"`
}

// AskIssue is one verification issue in the response.
type AskIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Problem  string `json:"problem"`
}

// AskResponse represents the guidance API response.
type AskResponse struct {
	Answer        string     `json:"answer"`
	Decision      string     `json:"decision"`
	Confidence    float64    `json:"confidence"`
	RequiresHuman bool       `json:"requires_human"`
	Cached        bool       `json:"cached"`
	ProcessingMs  int64      `json:"processing_ms"`
	Issues        []AskIssue `json:"issues"`
	Stages        []string   `json:"stages"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		profilePath  string
		grade        int
		curriculum   string
		subjects     []string
		marks        []string
		interests    []string
		weaknesses   []string
		financial    string
		location     string
		timeFlexible bool
		strict       bool
		skipVerify   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask for career guidance",
		Long:  "Sends a career question with your study profile to the guidance service and prints the verified answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			profile, err := buildProfile(profilePath, grade, curriculum, subjects, marks, interests, weaknesses, financial, location, timeFlexible)
			if err != nil {
				return err
			}

			return runAsk(cmd, args[0], profile, AskOptions{
				SkipLLMVerification: skipVerify,
				StrictMode:          strict,
			}, outputJSON)
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", "", "Path to a JSON profile file (flags below override its fields)")
	cmd.Flags().IntVarP(&grade, "grade", "g", 0, "School grade (8-12)")
	cmd.Flags().StringVar(&curriculum, "curriculum", "", "Curriculum, e.g. CAPS or IEB")
	cmd.Flags().StringSliceVarP(&subjects, "subject", "s", nil, "Subject taken (repeatable)")
	cmd.Flags().StringSliceVarP(&marks, "mark", "m", nil, "Subject mark as Subject=75 (repeatable)")
	cmd.Flags().StringSliceVarP(&interests, "interest", "i", nil, "Interest (repeatable)")
	cmd.Flags().StringSliceVarP(&weaknesses, "weakness", "w", nil, "Academic weakness (repeatable)")
	cmd.Flags().StringVar(&financial, "financial", "", "Financial constraint: low, medium or high")
	cmd.Flags().StringVar(&location, "location", "", "Home province or city")
	cmd.Flags().BoolVar(&timeFlexible, "time-flexible", false, "Open to part-time or distance study")
	cmd.Flags().BoolVar(&strict, "strict", false, "Force model verification and reject high-severity issues")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip model verification (rule checks still run)")

	return cmd
}

func buildProfile(profilePath string, grade int, curriculum string, subjects, marks, interests, weaknesses []string, financial, location string, timeFlexible bool) (AskProfile, error) {
	var profile AskProfile

	if profilePath != "" {
		raw, err := os.ReadFile(profilePath)
		if err != nil {
			return profile, fmt.Errorf("failed to read profile file: %w", err)
		}
		if err := json.Unmarshal(raw, &profile); err != nil {
			return profile, fmt.Errorf("failed to parse profile file: %w", err)
		}
	}

	if grade != 0 {
		profile.Grade = grade
	}
	if curriculum != "" {
		profile.Curriculum = curriculum
	}
	if len(subjects) > 0 {
		profile.Subjects = subjects
	}
	if len(interests) > 0 {
		profile.Interests = interests
	}
	if len(weaknesses) > 0 {
		profile.Weaknesses = weaknesses
	}
	if financial != "" {
		profile.Financial = financial
	}
	if location != "" {
		profile.Location = location
	}
	if timeFlexible {
		profile.TimeFlexible = true
	}

	if len(marks) > 0 {
		if profile.Marks == nil {
			profile.Marks = map[string]float64{}
		}
		for _, pair := range marks {
			subject, value, found := strings.Cut(pair, "=")
			if !found {
				return profile, fmt.Errorf("invalid mark %q, expected Subject=75", pair)
			}
			mark, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return profile, fmt.Errorf("invalid mark value in %q: %w", pair, err)
			}
			profile.Marks[strings.TrimSpace(subject)] = mark
		}
	}

	// Marked subjects count as taken even when --subject is omitted.
	for subject := range profile.Marks {
		if !containsFold(profile.Subjects, subject) {
			profile.Subjects = append(profile.Subjects, subject)
		}
	}

	if profile.Grade == 0 {
		return profile, fmt.Errorf("grade is required (use --grade or --profile)")
	}
	if len(profile.Subjects) == 0 {
		return profile, fmt.Errorf("at least one subject is required (use --subject, --mark or --profile)")
	}

	return profile, nil
}

func containsFold(items []string, target string) bool {
	for _, item := range items {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

func runAsk(cmd *cobra.Command, query string, profile AskProfile, options AskOptions, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/guidance", AskRequest{
		Query:   query,
		Profile: profile,
		Options: options,
	})
	if err != nil {
		return err
	}

	var result AskResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Println(result.Answer)
	fmt.Println()
	fmt.Printf("decision: %s  confidence: %.2f", result.Decision, result.Confidence)
	if result.Cached {
		fmt.Print("  (cached)")
	}
	fmt.Println()
	if result.RequiresHuman {
		fmt.Println("A human counsellor should review this answer.")
	}
	for _, issue := range result.Issues {
		fmt.Printf("issue (%s/%s): %s\n", issue.Type, issue.Severity, issue.Problem)
	}

	return nil
}
