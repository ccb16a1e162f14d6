package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kaelo-ai/kaelo/internal/domain"
)

const (
	maxKeySubjects  = 6
	maxKeyInterests = 4
)

// Key derives a deterministic cache key from the version tag, a normalized
// profile signature and a hash of the query. Marks are rounded to the
// nearest 10 and subject/interest lists are sorted and capped so near-
// identical profiles share entries.
func Key(version string, profile *domain.StudentProfile, query string) string {
	sig := profileSignature(profile)
	queryHash := hashText(query)
	return fmt.Sprintf("kaelo:guidance:%s:%s:%s", version, sig, queryHash)
}

func profileSignature(profile *domain.StudentProfile) string {
	if profile == nil {
		return "anon"
	}

	subjects := normalizeList(profile.Subjects, maxKeySubjects)
	interests := normalizeList(profile.Interests, maxKeyInterests)

	marks := make([]string, 0, len(profile.Marks))
	for subject, mark := range profile.Marks {
		rounded := int(math.Round(mark/10) * 10)
		marks = append(marks, fmt.Sprintf("%s=%d", strings.ToLower(strings.TrimSpace(subject)), rounded))
	}
	sort.Strings(marks)

	financial := string(profile.Constraints.Financial)
	if financial == "" {
		financial = "unset"
	}

	parts := []string{
		fmt.Sprintf("g%d", profile.Grade),
		strings.Join(subjects, ","),
		strings.Join(interests, ","),
		financial,
		strings.Join(marks, ","),
	}

	return hashText(strings.Join(parts, "|"))[:16]
}

func normalizeList(items []string, limit int) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			normalized = append(normalized, item)
		}
	}
	sort.Strings(normalized)
	if len(normalized) > limit {
		normalized = normalized[:limit]
	}
	return normalized
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}
